package extension

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"io/fs"
	"path"
	"strconv"
	"strings"
	"sync"

	rpcerrors "github.com/vinayprograms/rpckit/errors"
)

// ManifestDir is the directory, inside every resource FS, that holds
// manifest files.
const ManifestDir = "extensions"

type resource struct {
	name string
	fsys fs.FS
}

var (
	resMu     sync.RWMutex
	resources []resource
)

// AddResources makes the manifests under ManifestDir in fsys visible to all
// loaders. Packages call it from init with an embedded FS:
//
//	//go:embed extensions
//	var manifests embed.FS
//
//	func init() { extension.AddResources("registry/zookeeper", manifests) }
func AddResources(name string, fsys fs.FS) {
	resMu.Lock()
	defer resMu.Unlock()
	resources = append(resources, resource{name: name, fsys: fsys})
}

func snapshotResources() []resource {
	resMu.RLock()
	defer resMu.RUnlock()
	out := make([]resource, len(resources))
	copy(out, resources)
	return out
}

// ParseManifest reads "name=implementation" lines from r into into. Lines
// starting with '#' and blank lines are skipped. A line that does not split
// into exactly two non-empty sides, or that repeats a name already in into,
// is an error. source names the file in error messages.
func ParseManifest(r io.Reader, source string, into map[string]string) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		where := source + ":" + strconv.Itoa(lineNo)
		parts := strings.Split(line, "=")
		if len(parts) != 2 {
			return rpcerrors.Configuration("malformed manifest line "+strconv.Quote(line),
				rpcerrors.WithMetadata("source", where))
		}
		name := strings.TrimSpace(parts[0])
		impl := strings.TrimSpace(parts[1])
		if name == "" || impl == "" {
			return rpcerrors.Configuration("malformed manifest line "+strconv.Quote(line),
				rpcerrors.WithMetadata("source", where))
		}
		if _, dup := into[name]; dup {
			return rpcerrors.Configuration("extension "+name+" already exists",
				rpcerrors.WithMetadata("source", where))
		}
		into[name] = impl
	}
	if err := scanner.Err(); err != nil {
		return rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeConfiguration, "read manifest failed",
			rpcerrors.WithMetadata("source", source))
	}
	return nil
}

// scanManifests reads the manifest for c from every registered resource and
// resolves each implementation name to its constructor.
func scanManifests(c *capability) (map[string]implementation, error) {
	file := path.Join(ManifestDir, ManifestName(c.typ))

	names := make(map[string]string)
	sources := make(map[string]string)
	for _, res := range snapshotResources() {
		data, err := fs.ReadFile(res.fsys, file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeConfiguration, "read manifest failed",
				rpcerrors.WithExtension(c.name, ""),
				rpcerrors.WithMetadata("source", res.name+"/"+file))
		}

		source := res.name + "/" + file
		if err := ParseManifest(bytes.NewReader(data), source, names); err != nil {
			return nil, rpcerrors.Wrap(err, "parse manifest failed", rpcerrors.WithExtension(c.name, ""))
		}
		for name := range names {
			if _, seen := sources[name]; !seen {
				sources[name] = source
			}
		}
	}

	classes := make(map[string]implementation, len(names))
	for name, typeName := range names {
		ctor, ok := lookupImplementation(typeName)
		if !ok {
			return nil, rpcerrors.Configuration("unknown implementation "+typeName,
				rpcerrors.WithExtension(c.name, name),
				rpcerrors.WithMetadata("source", sources[name]))
		}
		classes[name] = implementation{typeName: typeName, source: sources[name], ctor: ctor}
	}
	return classes, nil
}
