//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"gorelay/internal/config"
	"gorelay/internal/dbmongo"
	"gorelay/internal/dbmysql"
	"gorelay/internal/gateway"
	"gorelay/internal/media"
	"gorelay/internal/message/handler"
	"gorelay/internal/message/repository"
	"gorelay/internal/message/service"
	"gorelay/internal/presence"
)

// This is just a declaration — wire generates the real body.
func InitializeApplication() (*Application, error) {
	wire.Build(
		config.LoadConfig,
		dbmysql.NewMySQL,
		dbmysql.NewRoomDirectory,
		presence.NewRedisClient,
		ProvidePresence,
		dbmongo.NewMongoConnection,
		dbmongo.NewMediaStorage,
		gateway.NewRegistry,
		gateway.NewDispatcher,
		gateway.NewGateway,
		ProvideSessionValidator,
		ProvideBroadcaster,
		repository.NewMessageRepository,
		service.NewMessageService,
		handler.NewMessageHandler,
		media.NewHandler,
		wire.Struct(new(Application), "*"),
	)
	return &Application{}, nil
}
