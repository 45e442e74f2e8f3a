package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/bigkaa/srm-manager/internal/domain/model"
)

// ctxReader прерывает чтение при отмене контекста.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// copyFile копирует src в dst с подсчётом SHA-256 на лету.
//
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При ошибке temp файл удаляется.
func copyFile(ctx context.Context, src, dst string) (int64, string, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, "", fmt.Errorf("ошибка открытия исходного файла: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return 0, "", fmt.Errorf("ошибка создания каталога: %w", err)
	}

	tmpPath := dst + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, "", fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	hasher := sha256.New()
	size, err := io.Copy(f, io.TeeReader(ctxReader{ctx: ctx, r: in}, hasher))
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, "", fmt.Errorf("ошибка записи данных: %w", err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, "", fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, "", fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return 0, "", fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return size, hex.EncodeToString(hasher.Sum(nil)), nil
}

// commitFile переносит записанный клиентом временный файл на место.
func commitFile(staged, dst string) (int64, error) {
	f, err := os.OpenFile(staged, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("временный файл не найден: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return 0, fmt.Errorf("ошибка fsync: %w", err)
	}
	info, err := f.Stat()
	f.Close()
	if err != nil {
		return 0, fmt.Errorf("ошибка получения информации о файле: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return 0, fmt.Errorf("ошибка создания каталога: %w", err)
	}
	if err := os.Rename(staged, dst); err != nil {
		return 0, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return info.Size(), nil
}

// checksumFile вычисляет SHA-256 хэш существующего файла.
func checksumFile(fullPath string) (string, error) {
	f, err := os.Open(fullPath)
	if err != nil {
		return "", fmt.Errorf("ошибка открытия файла: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("ошибка вычисления checksum: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// pathDetail собирает метаданные пути для srmLs.
// levels — глубина обхода подкаталогов; detailed — с контрольными суммами.
func pathDetail(fullPath, logical string, levels int, detailed bool) (model.PathDetail, error) {
	info, err := os.Stat(fullPath)
	if err != nil {
		return model.PathDetail{}, err
	}

	d := model.PathDetail{
		Path:       logical,
		ModifiedAt: info.ModTime().UTC(),
		CreatedAt:  info.ModTime().UTC(),
	}
	if !info.IsDir() {
		d.Type = model.PathTypeFile
		d.Size = uint64(info.Size())
		if detailed {
			sum, err := checksumFile(fullPath)
			if err != nil {
				return model.PathDetail{}, err
			}
			d.Checksum = sum
			d.ChecksumType = "sha256"
		}
		return d, nil
	}

	d.Type = model.PathTypeDirectory
	if levels <= 0 {
		return d, nil
	}
	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return model.PathDetail{}, err
	}
	for _, e := range entries {
		if logical == "/" && e.Name() == stagingDirName {
			continue
		}
		sub, err := pathDetail(filepath.Join(fullPath, e.Name()), path.Join(logical, e.Name()), levels-1, detailed)
		if err != nil {
			// Файл мог быть удалён во время обхода.
			continue
		}
		d.SubPaths = append(d.SubPaths, sub)
	}
	return d, nil
}
