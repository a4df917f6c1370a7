package cli

import (
	"context"
	"fmt"

	"github.com/digitide-user/mst26-cp1/internal/config"
	"github.com/digitide-user/mst26-cp1/internal/device"
	"github.com/digitide-user/mst26-cp1/internal/outbox"
	"github.com/digitide-user/mst26-cp1/internal/store"
)

// appEnv wires together the durable state every command needs: config,
// store, identity, and the outbox queue. Constructed once per command run.
type appEnv struct {
	cfg     *config.Config
	st      *store.Store
	id      *device.Identity
	queue   *outbox.Queue
	apiBase string
}

// openEnv resolves configuration and opens the local database.
//
// The API base resolves as: --api flag (persisted for next time) > persisted
// setting > MST_API_BASE / default. The operator label resolves the same way
// inside device.LoadOrCreate.
func openEnv(ctx context.Context, opts *RootOptions) (*appEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = cfg.DBPath
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open local database %s: %w", dbPath, err)
	}

	apiBase := opts.APIBase
	if apiBase != "" {
		if err := st.SetSetting(ctx, store.KeyAPIBase, apiBase); err != nil {
			st.Close()
			return nil, err
		}
	} else {
		stored, err := st.GetSetting(ctx, store.KeyAPIBase)
		if err != nil {
			st.Close()
			return nil, err
		}
		apiBase = stored
		if apiBase == "" {
			apiBase = cfg.APIBase
		}
	}

	id, err := device.LoadOrCreate(ctx, st, opts.Operator, cfg.Operator)
	if err != nil {
		st.Close()
		return nil, err
	}

	queue := outbox.New(st, id, outbox.Options{
		APIBase:    apiBase,
		Station:    cfg.Station,
		LockWindow: cfg.LockWindow,
	})

	return &appEnv{
		cfg:     cfg,
		st:      st,
		id:      id,
		queue:   queue,
		apiBase: apiBase,
	}, nil
}

func (a *appEnv) Close() error {
	return a.st.Close()
}
