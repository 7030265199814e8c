package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/stemforge/stemforge/internal/account"
	"github.com/stemforge/stemforge/internal/audio"
	"github.com/stemforge/stemforge/internal/clock"
	"github.com/stemforge/stemforge/internal/compute"
	"github.com/stemforge/stemforge/internal/config"
	"github.com/stemforge/stemforge/internal/identity"
	"github.com/stemforge/stemforge/internal/invite"
	"github.com/stemforge/stemforge/internal/ledger"
	"github.com/stemforge/stemforge/internal/locks"
	"github.com/stemforge/stemforge/internal/migration"
	"github.com/stemforge/stemforge/internal/pipeline"
	"github.com/stemforge/stemforge/internal/pricing"
	"github.com/stemforge/stemforge/internal/processing"
	"github.com/stemforge/stemforge/internal/recharge"
	"github.com/stemforge/stemforge/internal/scheduler"
	"github.com/stemforge/stemforge/internal/server"
	"github.com/stemforge/stemforge/internal/storage"
	"github.com/stemforge/stemforge/pkg/db"
	"github.com/stemforge/stemforge/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure.
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		locks.Module,
		migration.Module,

		// External systems.
		storage.Module,
		audio.Module,
		compute.Module,
		identity.Module,

		// Functional domains.
		account.Module,
		pricing.Module,
		processing.Module,
		ledger.Module,
		pipeline.Module,
		invite.Module,
		recharge.Module,

		// Surfaces.
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

// RegisterSnowflake builds the process-wide ID generator. Replicas must run
// with distinct node numbers to keep IDs unique.
func RegisterSnowflake() (*snowflake.Node, error) {
	nodeID := int64(1)
	if raw := os.Getenv("SNOWFLAKE_NODE_ID"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			nodeID = parsed
		}
	}
	return snowflake.NewNode(nodeID)
}
