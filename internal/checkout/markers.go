package checkout

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/any-hub/doc-hub/internal/library"
)

const markerSuffix = ".error.txt"

// MarkerStore 管理失败标记 <TmpPath>/<owner>/<name>.error.txt。
// 标记的存在本身即为结论，内容只供排查。
type MarkerStore struct {
	root string
}

// NewMarkerStore 以 TmpPath 为根构造标记存储。
func NewMarkerStore(root string) *MarkerStore {
	return &MarkerStore{root: root}
}

// Path 返回 identity 对应的标记文件路径。
func (s *MarkerStore) Path(id library.Identity) string {
	return filepath.Join(s.root, id.Owner, id.Name+markerSuffix)
}

// Exists 判断 identity 是否存在失败标记。
func (s *MarkerStore) Exists(id library.Identity) bool {
	info, err := os.Stat(s.Path(id))
	return err == nil && info.Mode().IsRegular()
}

// Write 记录失败，覆盖旧标记。
func (s *MarkerStore) Write(id library.Identity, kind Kind, cause error, at time.Time) error {
	p := s.Path(id)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	body := fmt.Sprintf("%s\n%s\n%v\n", at.UTC().Format(time.RFC3339), kind, cause)
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, []byte(body), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

// Remove 删除失败标记，不存在时视为成功。
func (s *MarkerStore) Remove(id library.Identity) error {
	if err := os.Remove(s.Path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
