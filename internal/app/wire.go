//go:build wireinject
// +build wireinject

package app

import (
	"context"

	"github.com/google/wire"

	"github.com/chatforge/authcore/internal/config"
)

// Initialize builds the fully wired application. Run `wire` in this
// package to regenerate wire_gen.go after changing providers.
func Initialize(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(providerSet)
	return nil, nil, nil
}
