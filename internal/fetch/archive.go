package fetch

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

const (
	maxArchiveFiles = 20000
	maxArchiveBytes = 512 << 20
	gemDataMember   = "data.tar.gz"
)

var gzipMagic = []byte{0x1f, 0x8b}

// ErrUnsafeArchive 表示归档中包含逃逸目标目录的条目或超出大小限制。
var ErrUnsafeArchive = errors.New("unsafe archive entry")

// gem 包中除 data.tar.gz 以外的成员只包含元数据，不解包。
var gemMetaMembers = map[string]bool{
	"metadata.gz":       true,
	"checksums.yaml.gz": true,
}

type extractState struct {
	files int
	bytes int64
}

// Extract 将 r 中的 tar（可选 gzip 压缩）解包到 dest。若归档是 gem 格式，
// 则只展开其中的 data.tar.gz。
func Extract(ctx context.Context, r io.Reader, dest string) error {
	return extract(ctx, r, dest, &extractState{})
}

func extract(ctx context.Context, r io.Reader, dest string, state *extractState) error {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && bytes.Equal(magic, gzipMagic) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		return extractTar(ctx, zr, dest, state)
	}
	return extractTar(ctx, br, dest, state)
}

func extractTar(ctx context.Context, r io.Reader, dest string, state *extractState) error {
	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("tar: %w", err)
		}

		name := strings.TrimPrefix(path.Clean("/"+hdr.Name), "/")
		if name == gemDataMember {
			if err := extract(ctx, tr, dest, state); err != nil {
				return fmt.Errorf("%s: %w", gemDataMember, err)
			}
			continue
		}
		if gemMetaMembers[name] {
			continue
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			state.files++
			state.bytes += hdr.Size
			if state.files > maxArchiveFiles || state.bytes > maxArchiveBytes {
				return fmt.Errorf("%w: archive exceeds limits", ErrUnsafeArchive)
			}
			if err := writeEntry(target, tr, hdr.Size); err != nil {
				return err
			}
		default:
			// 链接与设备文件一律跳过。
		}
	}
}

func writeEntry(target string, r io.Reader, size int64) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.CopyN(f, r, size); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// safeJoin 拒绝绝对路径与 ".." 逃逸。
func safeJoin(dest, name string) (string, error) {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, `\`) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeArchive, name)
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrUnsafeArchive, name)
		}
	}
	target := filepath.Join(dest, filepath.FromSlash(name))
	if target != dest && !strings.HasPrefix(target, dest+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeArchive, name)
	}
	return target, nil
}
