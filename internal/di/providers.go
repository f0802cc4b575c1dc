package di

import (
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"gorelay/internal/common"
	"gorelay/internal/config"
	"gorelay/internal/dbmongo"
	"gorelay/internal/gateway"
	"gorelay/internal/media"
	"gorelay/internal/message/handler"
	"gorelay/internal/message/service"
	"gorelay/internal/presence"
)

// Application bundles every long-lived server component.
type Application struct {
	Config         *config.Config
	DB             *gorm.DB
	Redis          *redis.Client
	Mongo          *dbmongo.MongoClient
	Registry       *gateway.Registry
	Dispatcher     *gateway.Dispatcher
	Gateway        *gateway.Gateway
	MessageHandler *handler.MessageHandler
	MediaHandler   *media.Handler
	Sessions       common.SessionValidator
}

func ProvideSessionValidator() common.SessionValidator {
	return common.NewJWTValidator()
}

// ProvideBroadcaster hands the dispatcher to the message service under
// its consumer-side interface.
func ProvideBroadcaster(d *gateway.Dispatcher) service.Broadcaster {
	return d
}

func ProvidePresence(client *redis.Client) common.Presence {
	return presence.NewService(client)
}
