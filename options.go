package agent

import (
	"errors"

	"go.uber.org/zap"

	"github.com/Protocol-Lattice/agentforum/src/config"
	"github.com/Protocol-Lattice/agentforum/src/memory"
	"github.com/Protocol-Lattice/agentforum/src/models"
	"github.com/Protocol-Lattice/agentforum/src/state"
	"github.com/Protocol-Lattice/agentforum/src/swarm"
	"github.com/Protocol-Lattice/agentforum/src/tools"
)

// Option configures the Coordinator during construction.
type Option func(*Coordinator) error

// WithConfig replaces the default configuration. Options applied later still
// take precedence over it.
func WithConfig(cfg config.Config) Option {
	return func(c *Coordinator) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		c.cfg = cfg
		return nil
	}
}

// WithOracle sets the reasoning service. Without it New builds one from the
// configured provider and model.
func WithOracle(o models.Oracle) Option {
	return func(c *Coordinator) error {
		if o == nil {
			return errors.New("oracle is nil")
		}
		c.oracle = o
		return nil
	}
}

// WithTools registers tools for the planner. Nil entries are ignored.
func WithTools(ts ...tools.Tool) Option {
	return func(c *Coordinator) error {
		for _, t := range ts {
			if t == nil {
				continue
			}
			if err := c.catalog.Register(t); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithProfiles sets the forum panel to workers built from profiles.
func WithProfiles(profiles ...swarm.Profile) Option {
	return func(c *Coordinator) error {
		c.profiles = append([]swarm.Profile(nil), profiles...)
		return nil
	}
}

// WithWorkers adds ready-made workers to the forum panel, after any profiles.
func WithWorkers(workers ...*swarm.Worker) Option {
	return func(c *Coordinator) error {
		c.extraWorkers = append(c.extraWorkers, workers...)
		return nil
	}
}

// WithMemoryStore persists planner memory to store under the session id.
func WithMemoryStore(store memory.Store) Option {
	return func(c *Coordinator) error {
		c.store = store
		return nil
	}
}

// WithMirror forwards every shared state record to m.
func WithMirror(m state.Mirror) Option {
	return func(c *Coordinator) error {
		c.mirror = m
		return nil
	}
}

// WithUTCPClient registers the tools client serves instead of reading the
// configured providers file.
func WithUTCPClient(client tools.UTCPClient) Option {
	return func(c *Coordinator) error {
		if client == nil {
			return errors.New("utcp client is nil")
		}
		c.utcp = client
		return nil
	}
}

// WithSession fixes the session id instead of generating one. Reusing an id
// with a memory store resumes that session's planner memory.
func WithSession(id string) Option {
	return func(c *Coordinator) error {
		if id == "" {
			return errors.New("session id is empty")
		}
		c.session = id
		return nil
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) error {
		if l != nil {
			c.logger = l
		}
		return nil
	}
}
