package preset

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch перечитывает файл наборов при внешних изменениях, пока не отменен ctx.
// onReload получает результат каждой перезагрузки.
func (s *Store) Watch(ctx context.Context, onReload func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ошибка создания наблюдателя: %v", err)
	}
	defer watcher.Close()

	// файл заменяется переименованием, поэтому наблюдаем за каталогом
	target := filepath.Clean(s.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("ошибка наблюдения за %s: %v", target, err)
	}
	s.logger.Info("👀 Наблюдение за файлом наборов: %s", target)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			err := s.Reload()
			if err != nil {
				s.logger.LogError(err, "Ошибка перезагрузки наборов")
			}
			if onReload != nil {
				onReload(err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.LogError(err, "Ошибка наблюдателя наборов")
		}
	}
}
