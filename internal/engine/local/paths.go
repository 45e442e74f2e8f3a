package local

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/bigkaa/srm-manager/internal/domain/status"
)

// Resolver отображает SURL на пути внутри корневого каталога хранилища.
//
// Поддерживаемые формы SURL:
//   - srm://host[:port]/path/to/file
//   - srm://host[:port]/srm/managerv2?SFN=/path/to/file
type Resolver struct {
	dataDir  string
	turlBase string
}

// NewResolver создаёт Resolver. turlBase — префикс, к которому
// добавляется относительный путь при выдаче TURL.
func NewResolver(dataDir, turlBase string) *Resolver {
	return &Resolver{dataDir: dataDir, turlBase: strings.TrimRight(turlBase, "/")}
}

// Path возвращает логический путь файла (начинается с "/").
// Возвращает SRM_INVALID_PATH для некорректных SURL и путей с "..".
func (r *Resolver) Path(surl string) (string, error) {
	u, err := url.Parse(surl)
	if err != nil {
		return "", status.Errorf(status.InvalidPath, "некорректный SURL %q: %v", surl, err)
	}
	if u.Scheme != "srm" {
		return "", status.Errorf(status.InvalidPath, "ожидается схема srm://, получено %q", surl)
	}

	p := u.Path
	if sfn := u.Query().Get("SFN"); sfn != "" {
		p = sfn
	}
	if p == "" || p == "/" {
		return "/", nil
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", status.Errorf(status.InvalidPath, "путь %q выходит за пределы хранилища", p)
		}
	}
	clean := path.Clean("/" + p)
	if clean == "/"+stagingDirName || strings.HasPrefix(clean, "/"+stagingDirName+"/") {
		return "", status.Errorf(status.InvalidPath, "путь %q зарезервирован", p)
	}
	return clean, nil
}

// FullPath возвращает абсолютный путь файла на диске.
func (r *Resolver) FullPath(surl string) (string, error) {
	p, err := r.Path(surl)
	if err != nil {
		return "", err
	}
	return r.join(p), nil
}

// TURL возвращает transfer URL для пути относительно корня хранилища.
func (r *Resolver) TURL(rel string) string {
	return r.turlBase + "/" + strings.TrimLeft(filepath.ToSlash(rel), "/")
}

// StagingDir — каталог временных файлов put.
func (r *Resolver) StagingDir() string {
	return filepath.Join(r.dataDir, stagingDirName)
}

func (r *Resolver) join(p string) string {
	return filepath.Join(r.dataDir, filepath.FromSlash(p))
}

// stagingDirName — каталог внутри хранилища, недоступный через SURL.
const stagingDirName = ".staging"
