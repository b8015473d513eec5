// autoconfig provides a way to create various instances from the [config.Config] like
// [workspace.Workspace], [converter.Converter], [zap.Logger].
//
// For example, to instantiate [workspace.Workspace], you can write:
//
//	autoconfig.NewBuilder().Invoke(func(w *workspace.Workspace) error {
//	    ...
//	})
//
// Treat it as a dependency injection mechanism.
//
// autoconfig relies on [viper.Viper] which has a set of limitations. The most important one
// is the fact that it does not support hierarchical configuration per folder.
package autoconfig

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/stateful/dualdoc/internal/config"
	"github.com/stateful/dualdoc/internal/log"
	"github.com/stateful/dualdoc/internal/persistence"
	"github.com/stateful/dualdoc/internal/storage"
	"github.com/stateful/dualdoc/internal/surface"
	"github.com/stateful/dualdoc/internal/switcher"
	"github.com/stateful/dualdoc/internal/version"
	"github.com/stateful/dualdoc/internal/view"
	"github.com/stateful/dualdoc/internal/watcher"
	"github.com/stateful/dualdoc/internal/workspace"
	"github.com/stateful/dualdoc/pkg/document/converter"
)

type Builder struct {
	container *dig.Container
}

// NewBuilder returns a container with every constructor provided. Any of
// them can be replaced with Decorate before the first Invoke.
func NewBuilder() *Builder {
	b := &Builder{container: dig.New()}

	mustProvide(b.container.Provide(getViper))
	mustProvide(b.container.Provide(getConfig))
	mustProvide(b.container.Provide(getLogger))
	mustProvide(b.container.Provide(getConverter))
	mustProvide(b.container.Provide(getStorage))
	mustProvide(b.container.Provide(getWatcher))
	mustProvide(b.container.Provide(getSurface))
	mustProvide(b.container.Provide(getPersistence))
	mustProvide(b.container.Provide(getSwitcher))
	mustProvide(b.container.Provide(getWorkspace))

	return b
}

// Decorate replaces a provided value. See [dig.Container.Decorate].
func (b *Builder) Decorate(decorator interface{}, opts ...dig.DecorateOption) error {
	return dig.RootCause(b.container.Decorate(decorator, opts...))
}

// Invoke is used to invoke the function with the given dependencies.
// The package will automatically figure out how to instantiate them
// using the available configuration.
func (b *Builder) Invoke(function interface{}, opts ...dig.InvokeOption) error {
	err := b.container.Invoke(function, opts...)
	return dig.RootCause(err)
}

func mustProvide(err error) {
	if err != nil {
		panic("failed to provide: " + err.Error())
	}
}

func getViper() *viper.Viper {
	v := viper.New()

	v.SetConfigName("dualdoc")
	v.SetConfigType("yaml")

	v.AddConfigPath("/etc/dualdoc/")
	v.AddConfigPath("$HOME/.dualdoc/")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DUALDOC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func getConfig(v *viper.Viper) (*config.Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return config.Default(), nil
		}
		return nil, errors.WithStack(err)
	}

	// As viper does not offer writing config to a writer,
	// the workaround is to create a in-memory file system,
	// set it in viper, and write the config to it.
	// Finally, a deferred cleanup function is called
	// which brings back the OS file system.
	// Source: https://github.com/spf13/viper/issues/856
	memFS := afero.NewMemMapFs()

	v.SetFs(memFS)
	defer v.SetFs(afero.NewOsFs())

	if err := v.WriteConfigAs("/config.yaml"); err != nil {
		return nil, errors.WithStack(err)
	}

	content, err := afero.ReadFile(memFS, "/config.yaml")
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return config.ParseYAML(content)
}

func getLogger(c *config.Config) (*zap.Logger, error) {
	if c == nil {
		return zap.NewNop(), nil
	}
	logger, err := log.New(c.Log.Enabled, c.Log.Path, c.Log.Verbose)
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("version", version.BaseVersion()))
	log.Set(logger)
	return logger, nil
}

func getConverter(c *config.Config, logger *zap.Logger) *converter.Converter {
	return converter.New(
		converter.WithLogger(logger),
		converter.WithExtraLinkProtocols(c.Sanitize.ExtraLinkProtocols...),
	)
}

func getStorage(logger *zap.Logger) storage.Backend {
	return storage.NewOS(storage.WithLogger(logger))
}

func getWatcher(c *config.Config, logger *zap.Logger) (*watcher.Watcher, error) {
	return watcher.New(
		watcher.WithPatterns(c.Watch.Patterns...),
		watcher.WithFilter(c.Watch.Filter),
		watcher.WithLogger(logger),
	)
}

func getSurface(logger *zap.Logger) *surface.HTML {
	return surface.NewHTML(surface.WithLogger(logger))
}

func getPersistence(c *config.Config, backend storage.Backend, logger *zap.Logger) *persistence.Coordinator {
	return persistence.New(
		backend,
		persistence.WithDebounce(c.Persistence.Debounce),
		persistence.WithSaveTimeout(c.Persistence.SaveTimeout),
		persistence.WithLogger(logger),
	)
}

func getSwitcher(
	c *config.Config,
	p *persistence.Coordinator,
	backend storage.Backend,
	w *watcher.Watcher,
	logger *zap.Logger,
) *switcher.Coordinator {
	return switcher.New(
		p,
		backend,
		switcher.WithWatcher(w),
		switcher.WithThresholds(c.Switch.SavingNoticeBytes, c.Switch.LargeFileBytes),
		switcher.WithSignal(func(s switcher.Signal) {
			logger.Info("switch signal", zap.String("kind", string(s.Kind)), zap.String("path", s.Path), zap.Int64("size", s.Size))
		}),
		switcher.WithLogger(logger),
	)
}

func getWorkspace(
	c *config.Config,
	p *persistence.Coordinator,
	sw *switcher.Coordinator,
	s *surface.HTML,
	w *watcher.Watcher,
	conv *converter.Converter,
	logger *zap.Logger,
) *workspace.Workspace {
	return workspace.New(
		p,
		sw,
		s,
		workspace.WithWatcher(w),
		workspace.WithLogger(logger),
		workspace.WithViewOptions(
			view.WithConverter(conv),
			view.WithParseCacheSize(c.View.ParseCacheSize),
		),
	)
}
