//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/hephaestus/internal/server"
)

func InitializeServer(path ConfigPath) (*server.Server, func(), error) {
	wire.Build(ProviderSet)
	return nil, nil, nil
}
