package config

import (
	"context"
	"path/filepath"
	"reflect"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch 监听配置文件变化，模型配置变化时回调 onModelChange
// 监听所在目录以兼容编辑器的原子替换写入
func Watch(ctx context.Context, path string, current ModelConfig, onModelChange func(ModelConfig), logger *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					logger.Warn("config reload failed", zap.String("path", path), zap.Error(err))
					continue
				}
				if reflect.DeepEqual(cfg.Model, current) {
					continue
				}
				logger.Info("model config changed",
					zap.Int("max_depth", cfg.Model.MaxDepth),
					zap.Float64("test_ratio", cfg.Model.TestRatio),
					zap.Int64("seed", cfg.Model.Seed),
					zap.Bool("retrain_each_request", cfg.Model.RetrainEachRequest))
				current = cfg.Model
				onModelChange(cfg.Model)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
