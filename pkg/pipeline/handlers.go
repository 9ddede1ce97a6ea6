package pipeline

import (
	"context"
	"encoding/hex"

	"github.com/dbehnke/oqpsk-sink/pkg/logger"
)

// LogHandler logs every frame at info level
func LogHandler(log *logger.Logger) Handler {
	log = log.WithComponent("frames")
	return HandlerFunc(func(_ context.Context, d Decoded) error {
		fields := []logger.Field{
			logger.Uint64("seq", d.Seq),
			logger.Int("length", len(d.Raw)),
		}
		if d.Frame == nil {
			fields = append(fields,
				logger.String("raw", hex.EncodeToString(d.Raw)),
				logger.Error(d.ParseErr))
			log.Info("Frame received (unparsed)", fields...)
			return nil
		}

		fields = append(fields,
			logger.String("type", d.Frame.FCF.Type.String()),
			logger.Int("mac_seq", int(d.Frame.Seq)),
			logger.String("dst", d.Frame.Dst.String()),
			logger.String("src", d.Frame.Src.String()),
			logger.Int("payload", len(d.Frame.Payload)),
			logger.Bool("fcs_ok", d.Frame.FCSValid))
		log.Info("Frame received", fields...)
		return nil
	})
}
