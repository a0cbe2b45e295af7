package locator

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bromato/bromato/pkg/logger"
	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"github.com/pkg/errors"
)

// FileDescriptor 调用方内联提交的文件：扩展名 + base64 内容（可带 data URI 头）
type FileDescriptor struct {
	Extension string `json:"extension"`
	Content   string `json:"content"`
}

const base64Marker = "base64,"

// stagedFile 已通过校验、等待写盘的文件
type stagedFile struct {
	extension string
	data      []byte
}

// CheckUploads 只校验 setInputFiles 节点中的文件描述，不写盘。
// 配合 Engine.WithChecks 使用时，批量请求中任何一条链不合法都不会留下其他链的暂存文件。
func CheckUploads(_ context.Context, chain Chain) error {
	_, issues := collectUploads(chain)
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// collectUploads 解码链中所有 setInputFiles 节点，按节点下标返回待写入的文件
func collectUploads(chain Chain) (map[int][]stagedFile, []string) {
	pending := make(map[int][]stagedFile)
	var issues []string
	for i, node := range chain {
		if node.Kind != KindAction || Action(node.Operation) != ActionSetInputFiles {
			continue
		}
		files, nodeIssues := decodeDescriptors(i, node.Value)
		issues = append(issues, nodeIssues...)
		pending[i] = files
	}
	return pending, issues
}

// StageUploads 返回上传暂存中间件：
// 把每个 setInputFiles 节点中的文件描述解码写入 dir，并把节点的值替换为文件路径数组。
// 任何一个描述不合法都会使整条链失败，不会产生部分改写。写入的文件不会被自动清理。
func StageUploads(dir string) Middleware {
	return func(ctx context.Context, chain Chain) (Chain, error) {
		pending, issues := collectUploads(chain)
		if len(issues) > 0 {
			return nil, &ValidationError{Issues: issues}
		}
		if len(pending) == 0 {
			return chain, nil
		}

		absDir, err := filepath.Abs(dir)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve upload directory %s", dir)
		}
		if err := os.MkdirAll(absDir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create upload directory %s", absDir)
		}

		out := make(Chain, len(chain))
		copy(out, chain)
		for i, files := range pending {
			paths := make([]string, 0, len(files))
			for _, f := range files {
				path, err := writeStagedFile(ctx, absDir, f)
				if err != nil {
					return nil, err
				}
				paths = append(paths, path)
			}
			out[i].Value = paths
		}
		return out, nil
	}
}

func writeStagedFile(ctx context.Context, dir string, f stagedFile) (string, error) {
	name := uuid.NewString()
	if f.extension != "" {
		name += "." + f.extension
	}
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, f.data, 0o644); err != nil {
		return "", errors.Wrapf(err, "write staged upload %s", path)
	}

	if kind, err := filetype.Match(f.data); err == nil && kind != filetype.Unknown && kind.Extension != f.extension {
		logger.Warn(ctx, "Staged upload %s looks like %s (%s), declared extension is %q", name, kind.MIME.Value, kind.Extension, f.extension)
	} else {
		logger.Debug(ctx, "Staged upload %s (%d bytes)", name, len(f.data))
	}
	return path, nil
}

// decodeDescriptors 校验并解码节点中的文件描述，返回所有发现的问题
func decodeDescriptors(nodeIndex int, value any) ([]stagedFile, []string) {
	var entries []any
	switch v := value.(type) {
	case []any:
		entries = v
	case []FileDescriptor:
		for _, d := range v {
			entries = append(entries, d)
		}
	default:
		entries = []any{v}
	}

	var (
		files  []stagedFile
		issues []string
	)
	if len(entries) == 0 {
		issues = append(issues, fmt.Sprintf("node %d: at least one file is required", nodeIndex))
	}

	for j, entry := range entries {
		where := fmt.Sprintf("node %d, file %d", nodeIndex, j)
		desc, problems := asDescriptor(entry)
		if len(problems) > 0 {
			for _, p := range problems {
				issues = append(issues, where+": "+p)
			}
			continue
		}

		data, err := DecodeContent(desc.Content)
		if err != nil {
			issues = append(issues, fmt.Sprintf("%s: content is not valid base64: %v", where, err))
			continue
		}
		files = append(files, stagedFile{
			extension: strings.TrimPrefix(desc.Extension, "."),
			data:      data,
		})
	}
	return files, issues
}

func asDescriptor(entry any) (FileDescriptor, []string) {
	switch e := entry.(type) {
	case FileDescriptor:
		return e, nil
	case *FileDescriptor:
		if e == nil {
			return FileDescriptor{}, []string{"expected an object with extension and content"}
		}
		return *e, nil
	case map[string]any:
		var (
			desc     FileDescriptor
			problems []string
		)
		ext, ok := e["extension"].(string)
		if !ok {
			problems = append(problems, "extension: expected string")
		}
		content, ok := e["content"].(string)
		if !ok {
			problems = append(problems, "content: expected string")
		}
		desc.Extension = ext
		desc.Content = content
		return desc, problems
	default:
		return FileDescriptor{}, []string{fmt.Sprintf("expected an object with extension and content, got %T", entry)}
	}
}

// DecodeContent 解码 base64 内容，可带 data URI 头，末尾的 "=" 填充可省略
func DecodeContent(content string) ([]byte, error) {
	raw := strings.TrimRight(strings.TrimSpace(stripDataURI(content)), "=")
	return base64.RawStdEncoding.DecodeString(raw)
}

// stripDataURI 去掉 "data:<mime>;base64," 前缀
func stripDataURI(content string) string {
	if !strings.HasPrefix(content, "data:") {
		return content
	}
	if i := strings.Index(content, base64Marker); i >= 0 {
		return content[i+len(base64Marker):]
	}
	return content
}
