package tokencodec

import (
	"github.com/tech-arch1tect/tokenchain/config"
	"github.com/tech-arch1tect/tokenchain/services/jwt"
	"github.com/tech-arch1tect/tokenchain/services/logging"
	"github.com/tech-arch1tect/tokenchain/services/tokenstore"
	"go.uber.org/fx"
)

func ProvideCodec(cfg *config.Config, jwtService *jwt.Service, store tokenstore.Store, logger *logging.Service) *Codec {
	return NewCodec(cfg, jwtService, store, logger)
}

var Options = fx.Options(
	fx.Provide(ProvideCodec),
)
