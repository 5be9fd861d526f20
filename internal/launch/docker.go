package launch

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/klauspost/compress/gzip"

	"gamebattle/arena/internal/fault"
)

// baseImage runs the submitted entrypoint; the image contract only needs a
// stdin/stdout process on a TTY.
const baseImage = "python:3.11-slim"

// imageBuilder is the slice of the Docker engine API the builder uses.
type imageBuilder interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
}

// DockerBuilder builds game images with the local Docker daemon from a
// gzipped tar context containing a generated Dockerfile plus the team's
// files under project/.
type DockerBuilder struct {
	api imageBuilder
}

// NewDockerBuilder connects to the daemon from the environment.
func NewDockerBuilder() (*DockerBuilder, error) {
	api, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fault.Gamebattlef("connect docker daemon: %v", err)
	}
	return &DockerBuilder{api: api}, nil
}

// NewDockerBuilderWithAPI injects the engine API; tests use it.
func NewDockerBuilderWithAPI(api imageBuilder) *DockerBuilder {
	return &DockerBuilder{api: api}
}

// Build implements Builder.
func (b *DockerBuilder) Build(ctx context.Context, tag, dir, entrypoint string) error {
	buildContext, err := buildContextArchive(dir, entrypoint)
	if err != nil {
		return err
	}

	resp, err := b.api.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:        []string{tag},
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return fault.Gamebattlef("build %s: %v", tag, err)
	}
	defer resp.Body.Close()
	return drainBuildStream(tag, resp.Body)
}

// buildContextArchive packs a Dockerfile and the team's files into a
// gzipped tar the daemon accepts as a build context.
func buildContextArchive(dir, entrypoint string) (io.Reader, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	dockerfile := fmt.Sprintf("FROM %s\nCOPY project /project\nWORKDIR /project\nCMD [\"python\", %q]\n", baseImage, entrypoint)
	if err := tw.WriteHeader(&tar.Header{Name: "Dockerfile", Mode: 0o644, Size: int64(len(dockerfile))}); err != nil {
		return nil, fault.Gamebattlef("write build context: %v", err)
	}
	if _, err := tw.Write([]byte(dockerfile)); err != nil {
		return nil, fault.Gamebattlef("write build context: %v", err)
	}

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		name := "project/" + filepath.ToSlash(rel)
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(data))}); err != nil {
			return err
		}
		_, err = tw.Write(data)
		return err
	})
	if err != nil {
		return nil, fault.Gamebattlef("pack build context: %v", err)
	}

	if err := tw.Close(); err != nil {
		return nil, fault.Gamebattlef("close build context: %v", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fault.Gamebattlef("close build context: %v", err)
	}
	return &buf, nil
}

// drainBuildStream consumes the daemon's JSON progress stream and surfaces
// the first reported error. The stream must be read fully or the build is
// abandoned server-side.
func drainBuildStream(tag string, body io.Reader) error {
	decoder := json.NewDecoder(body)
	for {
		var message struct {
			Error string `json:"error"`
		}
		if err := decoder.Decode(&message); err != nil {
			if err == io.EOF {
				return nil
			}
			return fault.Gamebattlef("build %s: read stream: %v", tag, err)
		}
		if message.Error != "" {
			return fault.Gamebattlef("build %s: %s", tag, message.Error)
		}
	}
}
