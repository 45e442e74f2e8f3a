package local

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bigkaa/srm-manager/internal/domain/model"
	"github.com/bigkaa/srm-manager/internal/domain/status"
)

// Синхронные операции над пространством имён хранилища
// (srmMkdir, srmRmdir, srmRm, srmMv). Ошибки — *status.Error.

// Stat возвращает метаданные пути. levels — глубина обхода каталога.
func (e *Engine) Stat(surl string, levels int, detailed bool) (model.PathDetail, error) {
	logical, err := e.resolver.Path(surl)
	if err != nil {
		return model.PathDetail{}, err
	}
	detail, err := pathDetail(e.resolver.join(logical), logical, levels, detailed)
	if err != nil {
		return model.PathDetail{}, statError(surl, err)
	}
	return detail, nil
}

// Mkdir создаёт каталог. Родительский каталог должен существовать.
func (e *Engine) Mkdir(_ context.Context, surl string) error {
	full, err := e.resolver.FullPath(surl)
	if err != nil {
		return err
	}
	if _, err := os.Stat(full); err == nil {
		return status.Errorf(status.DuplicationError, "путь %s уже существует", surl)
	}
	parent, err := os.Stat(filepath.Dir(full))
	if err != nil || !parent.IsDir() {
		return status.Errorf(status.InvalidPath, "родительский каталог для %s не существует", surl)
	}
	if err := os.Mkdir(full, 0o750); err != nil {
		return status.Errorf(status.InternalError, "ошибка создания каталога: %v", err)
	}
	e.logger.Info("Каталог создан", slog.String("surl", surl))
	return nil
}

// Rmdir удаляет каталог. Непустой каталог удаляется только с recursive.
func (e *Engine) Rmdir(_ context.Context, surl string, recursive bool) error {
	logical, err := e.resolver.Path(surl)
	if err != nil {
		return err
	}
	if logical == "/" {
		return status.Errorf(status.InvalidPath, "корневой каталог не может быть удалён")
	}
	full := e.resolver.join(logical)
	info, err := os.Stat(full)
	if err != nil {
		return statError(surl, err)
	}
	if !info.IsDir() {
		return status.Errorf(status.InvalidPath, "%s не является каталогом", surl)
	}

	if !recursive {
		entries, err := os.ReadDir(full)
		if err != nil {
			return statError(surl, err)
		}
		if len(entries) > 0 {
			return status.Errorf(status.NonEmptyDirectory, "каталог %s не пуст", surl)
		}
		err = os.Remove(full)
	} else {
		err = os.RemoveAll(full)
	}
	if err != nil {
		return status.Errorf(status.InternalError, "ошибка удаления каталога: %v", err)
	}
	e.logger.Info("Каталог удалён",
		slog.String("surl", surl),
		slog.Bool("recursive", recursive),
	)
	return nil
}

// Rm удаляет файл.
func (e *Engine) Rm(_ context.Context, surl string) error {
	full, err := e.resolver.FullPath(surl)
	if err != nil {
		return err
	}
	info, err := os.Stat(full)
	if err != nil {
		return statError(surl, err)
	}
	if info.IsDir() {
		return status.Errorf(status.InvalidPath, "%s является каталогом", surl)
	}
	if err := os.Remove(full); err != nil {
		return status.Errorf(status.InternalError, "ошибка удаления файла: %v", err)
	}
	e.logger.Info("Файл удалён", slog.String("surl", surl))
	return nil
}

// Mv переименовывает файл или каталог. Цель не должна существовать.
func (e *Engine) Mv(_ context.Context, from, to string) error {
	src, err := e.resolver.Path(from)
	if err != nil {
		return err
	}
	dst, err := e.resolver.Path(to)
	if err != nil {
		return err
	}
	if src == "/" || dst == "/" {
		return status.Errorf(status.InvalidPath, "корневой каталог не может быть перемещён")
	}
	if src == dst {
		return nil
	}

	srcFull, dstFull := e.resolver.join(src), e.resolver.join(dst)
	if _, err := os.Stat(srcFull); err != nil {
		return statError(from, err)
	}
	if _, err := os.Stat(dstFull); err == nil {
		return status.Errorf(status.DuplicationError, "путь %s уже существует", to)
	}
	parent, err := os.Stat(filepath.Dir(dstFull))
	if err != nil || !parent.IsDir() {
		return status.Errorf(status.InvalidPath, "родительский каталог для %s не существует", to)
	}
	if err := os.Rename(srcFull, dstFull); err != nil {
		return status.Errorf(status.InternalError, "ошибка перемещения: %v", err)
	}
	e.logger.Info("Путь перемещён",
		slog.String("from", from),
		slog.String("to", to),
	)
	return nil
}
