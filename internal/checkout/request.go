package checkout

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"

	"github.com/any-hub/doc-hub/internal/library"
)

// Scheme 是支持的源码管理工具。
type Scheme string

const (
	SchemeGit Scheme = "git"
	SchemeSvn Scheme = "svn"
)

// Valid 判断 scheme 是否受支持。
func (s Scheme) Valid() bool {
	return s == SchemeGit || s == SchemeSvn
}

// Request 是一次 checkout 请求。Target 由 URL 确定性推导，相同 URL 指向同一工作树。
type Request struct {
	URL    string `json:"url"`
	Scheme Scheme `json:"scheme"`
	Owner  string `json:"owner"`
	Target string `json:"target"`
	Commit string `json:"commit,omitempty"`
}

// Identity 返回请求对应的 SCM identity（owner/target）。
func (r Request) Identity() library.Identity {
	return library.Identity{Owner: r.Owner, Name: r.Target}
}

type hookPayload struct {
	Repository struct {
		URL string `json:"url"`
	} `json:"repository"`
}

// ParseForm 由表单字段构造请求。payload 非空时按 webhook JSON 解析：
// http:// 改写为 git://，scheme 固定为 git，且不指定 commit（总是拉取最新）。
func ParseForm(scheme, rawURL, commit, payload string) (Request, error) {
	if strings.TrimSpace(payload) != "" {
		var hook hookPayload
		if err := json.Unmarshal([]byte(payload), &hook); err != nil {
			return Request{}, ErrMalformedPayload
		}
		if strings.TrimSpace(hook.Repository.URL) == "" {
			return Request{}, ErrMalformedPayload
		}
		rawURL = rewriteHTTP(strings.TrimSpace(hook.Repository.URL))
		scheme = string(SchemeGit)
		commit = ""
	}
	return NewRequest(Scheme(strings.TrimSpace(scheme)), strings.TrimSpace(rawURL), strings.TrimSpace(commit)), nil
}

// NewRequest 推导 Owner 与 Target，不做校验。
func NewRequest(scheme Scheme, rawURL, commit string) Request {
	return Request{
		URL:    rawURL,
		Scheme: scheme,
		Owner:  OwnerName(rawURL),
		Target: TargetName(rawURL),
		Commit: commit,
	}
}

// Validate 要求 URL 含 "://"、scheme 为 git/svn，且推导出的 owner/target 可安全映射为目录。
// commit 会成为发布目录名与 URL 中的版本段，因此必须是单个路径段：
// "feature/x" 这类带斜杠的分支名被拒绝，调用方应改传提交哈希。
func (r Request) Validate() error {
	if !strings.Contains(r.URL, "://") {
		return fmt.Errorf("%w: url %q has no scheme prefix", ErrInvalidScheme, r.URL)
	}
	if !r.Scheme.Valid() {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidScheme, r.Scheme)
	}
	if !library.ValidSegment(r.Owner) || !library.ValidSegment(r.Target) {
		return fmt.Errorf("%w: cannot derive owner/target from %q", ErrInvalidScheme, r.URL)
	}
	if r.Commit != "" && !library.ValidSegment(r.Commit) {
		if strings.Contains(r.Commit, "/") {
			return fmt.Errorf("%w: commit %q must be a single path segment, pass the commit hash instead of a slashed ref", ErrInvalidScheme, r.Commit)
		}
		return fmt.Errorf("%w: invalid commit %q", ErrInvalidScheme, r.Commit)
	}
	return nil
}

var trailingExt = regexp.MustCompile(`\.[^.]+$`)

// TargetName 取 URL 最后一段，去掉一个扩展名并删除所有空白。
func TargetName(rawURL string) string {
	base := path.Base(strings.TrimRight(rawURL, "/"))
	return stripSpace(trailingExt.ReplaceAllString(base, ""))
}

// OwnerName 取 URL 倒数第二段作为 owner；路径只有一段时退回主机名。
func OwnerName(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(segments) >= 2 {
			return stripSpace(segments[len(segments)-2])
		}
		return stripSpace(u.Hostname())
	}
	trimmed := strings.TrimRight(rawURL, "/")
	if i := strings.Index(trimmed, "://"); i >= 0 {
		trimmed = trimmed[i+3:]
	}
	// scp 风格（git@host:owner/repo.git）
	trimmed = strings.Replace(trimmed, ":", "/", 1)
	segments := strings.Split(trimmed, "/")
	if len(segments) >= 2 {
		return stripSpace(segments[len(segments)-2])
	}
	return ""
}

func rewriteHTTP(u string) string {
	if strings.HasPrefix(u, "http://") {
		return "git://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
