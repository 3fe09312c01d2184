package serializer

import (
	"embed"

	"github.com/vinayprograms/rpckit/extension"
	"github.com/vinayprograms/rpckit/rpcurl"
)

//go:embed extensions
var manifests embed.FS

// Serializer encodes values for storage in a registry backend.
type Serializer interface {
	// Name is the extension name the serializer is published under.
	Name() string

	// ContentType is the MIME type of the encoded form.
	ContentType() string

	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

func init() {
	extension.MustDeclare(extension.Spec[Serializer]{Default: "json"})

	extension.Implement(NewJSON)
	extension.Implement(NewTOML)
	extension.Implement(NewYAML)
	extension.AddResources("serializer", manifests)
}

// Get returns the serializer published as name. A blank name selects the
// default, json.
func Get(name string) (Serializer, error) {
	loader, err := extension.ForType[Serializer]()
	if err != nil {
		return nil, err
	}
	return loader.Get(name)
}

// Default returns the json serializer.
func Default() (Serializer, error) {
	return Get("")
}

// ForURL returns the serializer named by u's "serializer" parameter.
func ForURL(u *rpcurl.URL) (Serializer, error) {
	if u == nil {
		return Default()
	}
	return Get(u.Param(rpcurl.KeySerializer, ""))
}

// Names lists every available serializer.
func Names() ([]string, error) {
	loader, err := extension.ForType[Serializer]()
	if err != nil {
		return nil, err
	}
	return loader.Names()
}
