package table

import (
	"context"
	stdErrors "errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	xerrors "SheetQueue/internal/errors"
)

// Store 抽象了表格的持久化。每次 Load 都重新读取底层存储，不做跨调用缓存。
type Store interface {
	Load(ctx context.Context, location string) (*Table, error)
	Save(ctx context.Context, location string, t *Table) error
}

// Resolver 由能够把位置规范化的存储实现，调用方据此在加锁前完成校验。
type Resolver interface {
	Resolve(location string) (string, error)
}

// codec 负责某一种文件格式的解析与序列化。
type codec interface {
	decode(path string) (*Table, error)
	// encode 把表格写入 w；path 为当前目标文件，用于保留工作簿中与表格无关的内容。
	encode(path string, t *Table, w io.Writer) error
}

// FileStore 以本地文件作为表格存储，按扩展名选择格式。
type FileStore struct {
	root   string
	codecs map[string]codec
}

// Option 配置 FileStore。
type Option func(*FileStore)

// WithRootDir 限制所有位置必须位于 dir 之内。
func WithRootDir(dir string) Option {
	return func(s *FileStore) {
		if strings.TrimSpace(dir) == "" {
			return
		}
		if abs, err := filepath.Abs(dir); err == nil {
			s.root = filepath.Clean(abs)
		}
	}
}

// NewFileStore 创建文件存储，支持 .xlsx/.xlsm/.csv/.tsv。
func NewFileStore(opts ...Option) *FileStore {
	s := &FileStore{
		codecs: map[string]codec{
			".xlsx": xlsxCodec{},
			".xlsm": xlsxCodec{},
			".csv":  csvCodec{comma: ','},
			".tsv":  csvCodec{comma: '\t'},
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Resolve 把请求中的位置转换为绝对路径，并校验是否位于根目录内。
func (s *FileStore) Resolve(location string) (string, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "path 不能为空")
	}
	abs, err := filepath.Abs(location)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "无法解析 path")
	}
	abs = filepath.Clean(abs)
	if s.root == "" {
		return abs, nil
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", xerrors.New(xerrors.CodeForbidden, "path 不在存储根目录内",
			xerrors.WithMetadata("location", location))
	}
	return abs, nil
}

// Load 实现 Store 接口。
func (s *FileStore) Load(ctx context.Context, location string) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.Resolve(location)
	if err != nil {
		return nil, err
	}
	c, err := s.codecFor(path)
	if err != nil {
		return nil, err
	}
	if _, err := statFile(path); err != nil {
		return nil, err
	}
	return c.decode(path)
}

// Save 实现 Store 接口，写入是原子的：失败时原文件内容保持不变。
func (s *FileStore) Save(ctx context.Context, location string, t *Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "table 不能为空")
	}
	path, err := s.Resolve(location)
	if err != nil {
		return err
	}
	c, err := s.codecFor(path)
	if err != nil {
		return err
	}

	perm := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	err = writeFileAtomic(path, perm, func(w io.Writer) error {
		return c.encode(path, t, w)
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeWriteError, err, "保存表格失败",
			xerrors.WithMetadata("location", location))
	}
	return nil
}

// Open 以只读方式打开位置对应的原始文件，供文件透传使用，不做表格解析。
func (s *FileStore) Open(ctx context.Context, location string) (*os.File, fs.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	path, err := s.Resolve(location)
	if err != nil {
		return nil, nil, err
	}
	info, err := statFile(path)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, classifyOpenError(err, path)
	}
	return f, info, nil
}

func (s *FileStore) codecFor(path string) (codec, error) {
	ext := strings.ToLower(filepath.Ext(path))
	c, ok := s.codecs[ext]
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "不支持的表格格式: "+ext,
			xerrors.WithMetadata("location", path))
	}
	return c, nil
}

func statFile(path string) (fs.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, classifyOpenError(err, path)
	}
	if info.IsDir() {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "path 指向目录",
			xerrors.WithMetadata("location", path))
	}
	return info, nil
}

func classifyOpenError(err error, path string) error {
	if stdErrors.Is(err, fs.ErrNotExist) {
		return xerrors.Wrap(xerrors.CodeNotFound, err, "表格文件不存在",
			xerrors.WithMetadata("location", path))
	}
	return xerrors.Wrap(xerrors.CodeParseError, err, "无法读取表格文件",
		xerrors.WithMetadata("location", path))
}

// ensure interface compliance at compile time
var (
	_ Store    = (*FileStore)(nil)
	_ Resolver = (*FileStore)(nil)
)
