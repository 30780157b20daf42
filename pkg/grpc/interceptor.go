package grpc

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"AnalysisPlatform/pkg/errors"
	"AnalysisPlatform/pkg/logger"
)

// UnaryServerInterceptor логирует вызовы и переводит ошибки приложения в gRPC статусы.
// Паника в обработчике превращается в codes.Internal.
func UnaryServerInterceptor(log logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		start := time.Now()

		defer func() {
			if recovered := recover(); recovered != nil {
				log.Error("Panic in gRPC handler",
					logger.CtxField(ctx),
					logger.String("method", info.FullMethod),
					logger.String("panic", fmt.Sprint(recovered)),
				)
				err = status.Error(codes.Internal, "internal server error")
			}
		}()

		resp, err = handler(ctx, req)
		err = toStatus(ctx, err)

		fields := []logger.Field{
			logger.CtxField(ctx),
			logger.String("method", info.FullMethod),
			logger.Duration("duration", time.Since(start)),
		}
		if err != nil {
			code := status.Code(err)
			fields = append(fields, logger.String("code", code.String()), logger.Error(err))
			if code == codes.Internal || code == codes.Unknown {
				log.Error("gRPC call failed", fields...)
			} else {
				log.Warn("gRPC call rejected", fields...)
			}
			return resp, err
		}

		log.Debug("gRPC call completed", fields...)
		return resp, nil
	}
}

func toStatus(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	var appErr *errors.Error
	if stderrors.As(err, &appErr) {
		return appErr.WithContext(ctx).ToGRPCErr()
	}
	return status.Error(codes.Internal, "internal server error")
}
