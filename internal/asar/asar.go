package asar

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// BlockSize is the integrity block size used by Electron.
const BlockSize = 4 << 20

// ErrInvalidArchive is returned for archives that cannot be parsed.
var ErrInvalidArchive = errors.New("invalid asar archive")

// ErrLinkOutsidePackage is returned by Pack for symlinks that resolve outside src.
var ErrLinkOutsidePackage = errors.New("link points outside the package")

// Integrity is the per-file checksum record.
type Integrity struct {
	Algorithm string   `json:"algorithm"`
	Hash      string   `json:"hash"`
	BlockSize int      `json:"blockSize"`
	Blocks    []string `json:"blocks"`
}

// Entry is a node of the header tree. Directories have Files, links have Link and
// regular files have Size and Offset.
type Entry struct {
	Files      map[string]*Entry `json:"files,omitempty"`
	Size       *int64            `json:"size,omitempty"`
	Offset     string            `json:"offset,omitempty"`
	Executable bool              `json:"executable,omitempty"`
	Link       string            `json:"link,omitempty"`
	Integrity  *Integrity        `json:"integrity,omitempty"`
}

func (e *Entry) IsDir() bool { return e.Files != nil }

// MarshalJSON keeps "files" on empty directories.
func (e *Entry) MarshalJSON() ([]byte, error) {
	if e.Files != nil {
		return json.Marshal(struct {
			Files map[string]*Entry `json:"files"`
		}{e.Files})
	}
	type plain Entry
	return json.Marshal((*plain)(e))
}

// linkTarget resolves the link at p and returns its target relative to realRoot.
func linkTarget(realRoot, p string) (string, error) {
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(realRoot, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrLinkOutsidePackage
	}
	return filepath.ToSlash(rel), nil
}

type packedFile struct {
	path string
	size int64
}

// Pack writes an archive of the directory tree at src to dst. Links are stored relative
// to the archive root and must resolve inside src.
func Pack(src, dst string) (err error) {
	root := &Entry{Files: map[string]*Entry{}}
	var files []packedFile
	var offset int64

	realRoot, err := filepath.EvalSymlinks(src)
	if err != nil {
		return fmt.Errorf("packing %s: %w", src, err)
	}

	err = filepath.WalkDir(src, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		parent, name := lookupParent(root, filepath.ToSlash(rel))

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := linkTarget(realRoot, p)
			if err != nil {
				return fmt.Errorf("%s: %w", rel, err)
			}
			parent.Files[name] = &Entry{Link: target}
		case d.IsDir():
			parent.Files[name] = &Entry{Files: map[string]*Entry{}}
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return err
			}
			integrity, err := fileIntegrity(p)
			if err != nil {
				return err
			}
			size := info.Size()
			parent.Files[name] = &Entry{
				Size:       &size,
				Offset:     strconv.FormatInt(offset, 10),
				Executable: info.Mode()&0o100 != 0,
				Integrity:  integrity,
			}
			files = append(files, packedFile{path: p, size: size})
			offset += size
		default:
			return fmt.Errorf("%s: unsupported file type %s", rel, d.Type())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("packing %s: %w", src, err)
	}

	header, err := encodeHeader(root)
	if err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	if _, err = out.Write(header); err != nil {
		return err
	}
	for _, f := range files {
		if err = appendFile(out, f); err != nil {
			return err
		}
	}
	return nil
}

// lookupParent returns the directory entry holding rel and the base name. WalkDir visits
// parents first, so the directory always exists.
func lookupParent(root *Entry, rel string) (*Entry, string) {
	parts := strings.Split(rel, "/")
	dir := root
	for _, part := range parts[:len(parts)-1] {
		dir = dir.Files[part]
	}
	return dir, parts[len(parts)-1]
}

func appendFile(w io.Writer, f packedFile) error {
	in, err := os.Open(f.path)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	n, err := io.Copy(w, in)
	if err != nil {
		return err
	}
	if n != f.size {
		return fmt.Errorf("%s changed while packing", f.path)
	}
	return nil
}

func fileIntegrity(p string) (*Integrity, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	whole := sha256.New()
	blocks := []string{}
	buf := make([]byte, BlockSize)
	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			whole.Write(buf[:n])
			sum := sha256.Sum256(buf[:n])
			blocks = append(blocks, hex.EncodeToString(sum[:]))
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	if len(blocks) == 0 {
		sum := sha256.Sum256(nil)
		blocks = append(blocks, hex.EncodeToString(sum[:]))
	}
	return &Integrity{
		Algorithm: "SHA256",
		Hash:      hex.EncodeToString(whole.Sum(nil)),
		BlockSize: BlockSize,
		Blocks:    blocks,
	}, nil
}

// encodeHeader renders the size pickle followed by the header pickle.
func encodeHeader(root *Entry) ([]byte, error) {
	tree, err := json.Marshal(root)
	if err != nil {
		return nil, err
	}
	padded := align4(len(tree))

	// Header pickle: payload size, string length, string, padding.
	headerPickle := make([]byte, 8+padded)
	binary.LittleEndian.PutUint32(headerPickle[0:], uint32(4+padded))
	binary.LittleEndian.PutUint32(headerPickle[4:], uint32(len(tree)))
	copy(headerPickle[8:], tree)

	// Size pickle: payload size 4, then the header pickle length.
	out := make([]byte, 8, 8+len(headerPickle))
	binary.LittleEndian.PutUint32(out[0:], 4)
	binary.LittleEndian.PutUint32(out[4:], uint32(len(headerPickle)))
	return append(out, headerPickle...), nil
}

func align4(n int) int { return (n + 3) &^ 3 }

// Archive is an opened archive.
type Archive struct {
	Root *Entry
	// base is the offset of the first file byte.
	base int64
	r    io.ReaderAt
}

// Open parses the header of the archive at path. The caller closes the returned file.
func Open(path string) (*Archive, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	a, err := Read(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return a, f, nil
}

// Read parses an archive header from r.
func Read(r io.ReaderAt) (*Archive, error) {
	var sizePickle [8]byte
	if _, err := r.ReadAt(sizePickle[:], 0); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	if binary.LittleEndian.Uint32(sizePickle[0:]) != 4 {
		return nil, fmt.Errorf("%w: bad size pickle", ErrInvalidArchive)
	}
	headerSize := binary.LittleEndian.Uint32(sizePickle[4:])
	if headerSize < 8 || headerSize > 64<<20 {
		return nil, fmt.Errorf("%w: header size %d", ErrInvalidArchive, headerSize)
	}

	header := make([]byte, headerSize)
	if _, err := r.ReadAt(header, 8); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	strLen := binary.LittleEndian.Uint32(header[4:])
	if int(strLen) > len(header)-8 {
		return nil, fmt.Errorf("%w: header string overflows pickle", ErrInvalidArchive)
	}

	root := &Entry{}
	if err := json.Unmarshal(header[8:8+strLen], root); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	if root.Files == nil {
		root.Files = map[string]*Entry{}
	}
	return &Archive{Root: root, base: 8 + int64(headerSize), r: r}, nil
}

// Lookup finds the entry at the slash-separated path name.
func (a *Archive) Lookup(name string) (*Entry, bool) {
	e := a.Root
	for _, part := range strings.Split(strings.Trim(name, "/"), "/") {
		if e.Files == nil {
			return nil, false
		}
		next, ok := e.Files[part]
		if !ok {
			return nil, false
		}
		e = next
	}
	return e, true
}

// ReadFile returns the contents of the regular file at name.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	e, ok := a.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, fs.ErrNotExist)
	}
	if e.Size == nil {
		return nil, fmt.Errorf("%s: not a regular file", name)
	}
	off, err := strconv.ParseInt(e.Offset, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: offset of %s: %w", ErrInvalidArchive, name, err)
	}
	buf := make([]byte, *e.Size)
	if _, err := a.r.ReadAt(buf, a.base+off); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf, nil
}
