package bucket

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/md5"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/templateflow/tfget/internal/backend"
	"github.com/templateflow/tfget/internal/cache"
	"github.com/templateflow/tfget/internal/logging"
)

//go:embed skel/templateflow-skel.zip
var bundledSkeleton []byte

//go:embed skel/templateflow-skel.md5
var bundledChecksum string

// BundledChecksum 返回内置骨架的 MD5。
func BundledChecksum() string {
	return firstToken(bundledChecksum)
}

// Install 用内置骨架初始化 root，不访问网络。
func (b *Backend) Install(ctx context.Context, root string, overwrite bool) error {
	_, err := b.Update(ctx, root, backend.UpdateOptions{Local: true, Overwrite: overwrite, Silent: true})
	return err
}

// Update 将骨架解压到 root。Local 为 false 时先比较远端 MD5，不一致才下载远端骨架，
// 远端不可达或返回非 2xx 时退回内置骨架。Overwrite 为 true 时全部解压并返回 true；
// 否则只补齐本地缺失的条目，返回是否新增了文件。
func (b *Backend) Update(ctx context.Context, root string, opts backend.UpdateOptions) (bool, error) {
	fields := logging.WithOperation(ctx, logging.BaseFields("update", root))
	fields["backend"] = Name

	reader, err := zip.NewReader(bytes.NewReader(bundledSkeleton), int64(len(bundledSkeleton)))
	if err != nil {
		return false, fmt.Errorf("open bundled skeleton: %w", err)
	}
	if !opts.Local {
		remote, err := b.remoteSkeleton(ctx)
		if err != nil {
			return false, err
		}
		if remote != "" {
			defer os.Remove(remote)
			rc, err := zip.OpenReader(remote)
			if err != nil {
				return false, fmt.Errorf("open remote skeleton: %w", err)
			}
			defer rc.Close()
			reader = &rc.Reader
			fields["skeleton"] = "remote"
		}
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return false, fmt.Errorf("create archive root: %w", err)
	}

	if opts.Overwrite {
		if err := b.extractAll(ctx, reader, root); err != nil {
			return false, err
		}
		return true, nil
	}

	existing, err := existingEntries(root)
	if err != nil {
		return false, err
	}
	var added []*zip.File
	for _, f := range reader.File {
		if _, ok := existing[f.Name]; !ok {
			added = append(added, f)
		}
	}
	sort.Slice(added, func(i, j int) bool { return added[i].Name < added[j].Name })

	if len(added) == 0 {
		if !opts.Silent {
			b.logger.WithFields(fields).Info("skeleton_up_to_date")
		}
		return false, nil
	}
	if !opts.Silent {
		names := make([]string, len(added))
		for i, f := range added {
			names[i] = f.Name
		}
		fields["added"] = len(added)
		fields["files"] = names
		b.logger.WithFields(fields).Info("skeleton_update")
	}
	for _, f := range added {
		if err := extractExclusive(root, f); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Wipe 自底向上删除 root 下的所有条目，单个条目删除失败只记录警告。
func (b *Backend) Wipe(root string) error {
	if _, err := os.Lstat(root); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	store, err := b.store(root)
	if err != nil {
		return err
	}

	type walked struct {
		path string
		dir  bool
	}
	var entries []walked
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			b.logger.WithFields(logrus.Fields{"action": "wipe", "path": p}).WithError(walkErr).Warn("wipe_skip")
			if d != nil && d.IsDir() && p != root {
				return fs.SkipDir
			}
			return nil
		}
		entries = append(entries, walked{path: p, dir: d.IsDir()})
		return nil
	})
	if err != nil {
		return err
	}

	// WalkDir 按父目录先于子项的顺序给出路径，逆序即自底向上。
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		var rmErr error
		if e.dir {
			rmErr = os.Remove(e.path)
		} else if rel, relErr := filepath.Rel(root, e.path); relErr != nil {
			rmErr = relErr
		} else {
			rmErr = store.Remove(context.Background(), cache.Locator{Path: filepath.ToSlash(rel)})
		}
		if rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			b.logger.WithFields(logrus.Fields{"action": "wipe", "path": e.path}).WithError(rmErr).Warn("wipe_failed")
		}
	}
	return nil
}

// remoteSkeleton 返回下载好的远端骨架临时文件路径；内置骨架已是最新或远端不可用时返回空串。
func (b *Backend) remoteSkeleton(ctx context.Context) (string, error) {
	fields := logging.WithOperation(ctx, logrus.Fields{"action": "skeleton_check", "url": b.cfg.SkeletonChecksumURL()})

	body, ok := b.download(ctx, b.cfg.SkeletonChecksumURL(), fields)
	if !ok {
		return "", nil
	}
	remoteSum := firstToken(string(body))
	if remoteSum == "" {
		b.logger.WithFields(fields).Warn("skeleton_checksum_empty")
		return "", nil
	}
	if remoteSum == BundledChecksum() {
		return "", nil
	}

	fields["url"] = b.cfg.SkeletonArchiveURL()
	archive, ok := b.download(ctx, b.cfg.SkeletonArchiveURL(), fields)
	if !ok {
		return "", nil
	}
	sum := md5.Sum(archive)
	if got := hex.EncodeToString(sum[:]); got != remoteSum {
		fields["expected"] = remoteSum
		fields["got"] = got
		b.logger.WithFields(fields).Warn("skeleton_checksum_mismatch")
		return "", nil
	}

	name := filepath.Join(os.TempDir(), fmt.Sprintf("templateflow-skel-%s.zip", uuid.NewString()))
	if err := os.WriteFile(name, archive, 0o600); err != nil {
		return "", fmt.Errorf("write remote skeleton: %w", err)
	}
	return name, nil
}

// download 拉取小体积的骨架资源；连接错误或非 2xx 视为不可用。
func (b *Backend) download(ctx context.Context, target string, fields logrus.Fields) ([]byte, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		b.logger.WithFields(fields).WithError(err).Warn("skeleton_unavailable")
		return nil, false
	}
	resp, err := b.client.Do(req)
	if err != nil {
		b.logger.WithFields(fields).WithError(err).Debug("skeleton_unavailable")
		return nil, false
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		b.logger.WithFields(fields).WithField("status", resp.StatusCode).Debug("skeleton_unavailable")
		return nil, false
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		b.logger.WithFields(fields).WithError(err).Debug("skeleton_unavailable")
		return nil, false
	}
	return body, true
}

func (b *Backend) extractAll(ctx context.Context, reader *zip.Reader, root string) error {
	store, err := b.store(root)
	if err != nil {
		return err
	}
	for _, f := range reader.File {
		rel, err := entryName(f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(rel)), 0o755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("read skeleton entry %s: %w", f.Name, err)
		}
		_, err = store.Put(ctx, cache.Locator{Path: rel}, rc, cache.PutOptions{ModTime: f.Modified})
		rc.Close()
		if err != nil {
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}
	}
	return nil
}

// extractExclusive 以独占方式创建条目，文件已存在（例如被并发进程抢先写入）时跳过。
func extractExclusive(root string, f *zip.File) error {
	rel, err := entryName(f.Name)
	if err != nil {
		return err
	}
	dest := filepath.Join(root, filepath.FromSlash(rel))
	if f.FileInfo().IsDir() {
		return os.MkdirAll(dest, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return err
	}
	rc, err := f.Open()
	if err != nil {
		out.Close()
		return fmt.Errorf("read skeleton entry %s: %w", f.Name, err)
	}
	defer rc.Close()
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return out.Close()
}

// existingEntries 收集 root 下已有的相对路径，目录同时记录 "<dir>/" 形式，
// 与 zip 目录条目的命名保持一致。
func existingEntries(root string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		existing[rel] = struct{}{}
		existing[path.Dir(rel)+"/"] = struct{}{}
		if d.IsDir() {
			existing[rel+"/"] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan archive root: %w", err)
	}
	return existing, nil
}

// entryName 拒绝绝对路径与跳出根目录的 zip 条目。
func entryName(name string) (string, error) {
	clean := path.Clean(strings.TrimSuffix(name, "/"))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") || clean == "." {
		return "", fmt.Errorf("invalid skeleton entry %q", name)
	}
	return clean, nil
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
