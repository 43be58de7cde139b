package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/mqlforge/internal/config"
	"github.com/3leaps/mqlforge/pkg/artifact"
	"github.com/3leaps/mqlforge/pkg/compiler"
	"github.com/3leaps/mqlforge/pkg/jobregistry"
	"github.com/3leaps/mqlforge/pkg/provider"
	"github.com/3leaps/mqlforge/pkg/provider/file"
	"github.com/3leaps/mqlforge/pkg/provider/s3"
)

// pipeline is the compile stack shared by serve, compile and build.
type pipeline struct {
	orchestrator *compiler.Orchestrator
	artifacts    *artifact.Store
	jobs         *jobregistry.Store
	mirror       provider.ObjectStore
}

func (p *pipeline) Close() error {
	if p.artifacts == nil {
		return nil
	}
	return p.artifacts.Close()
}

// newPipeline wires the mirror, durable store, job registry and orchestrator
// from cfg.
func newPipeline(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pipeline, error) {
	mirror, err := newMirror(ctx, cfg.Mirror)
	if err != nil {
		return nil, fmt.Errorf("mirror: %w", err)
	}

	store, err := artifact.NewStore(artifact.Config{
		Dir:          cfg.Compiler.CompiledDir,
		Mirror:       mirror,
		MirrorPrefix: cfg.Mirror.Prefix,
		Logger:       logger,
	})
	if err != nil {
		if mirror != nil {
			_ = mirror.Close()
		}
		return nil, fmt.Errorf("artifact store: %w", err)
	}

	p := &pipeline{artifacts: store, mirror: mirror}

	opts := []compiler.Option{compiler.WithLogger(logger)}
	if cfg.Jobs.Enabled {
		p.jobs = jobregistry.NewStore(cfg.Jobs.Dir)
		opts = append(opts, compiler.WithRecorder(jobregistry.NewRecorder(p.jobs)))
	}

	orch, err := compiler.New(compilerConfig(cfg.Compiler), store, opts...)
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	p.orchestrator = orch
	return p, nil
}

func compilerConfig(c config.CompilerConfig) compiler.Config {
	exes := map[compiler.Dialect]string{}
	if strings.TrimSpace(c.MQL4Executable) != "" {
		exes[compiler.DialectMQL4] = c.MQL4Executable
	}
	if strings.TrimSpace(c.MQL5Executable) != "" {
		exes[compiler.DialectMQL5] = c.MQL5Executable
	}
	return compiler.Config{
		TempDir:         c.TempDir,
		Executables:     exes,
		Timeout:         c.Timeout,
		SerializeJobIDs: c.SerializeJobIDs,
	}
}

// newMirror returns nil when no mirror is configured.
func newMirror(ctx context.Context, m config.MirrorConfig) (provider.ObjectStore, error) {
	switch strings.ToLower(strings.TrimSpace(m.Provider)) {
	case config.MirrorNone:
		return nil, nil
	case config.MirrorFile:
		p, err := file.New(file.Config{BaseDir: m.BaseDir})
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.MirrorS3:
		p, err := s3.New(ctx, s3.Config{
			Bucket:         m.Bucket,
			Region:         m.Region,
			Endpoint:       m.Endpoint,
			Profile:        m.Profile,
			ForcePathStyle: m.ForcePathStyle || m.Endpoint != "",
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown mirror provider %q", m.Provider)
	}
}
