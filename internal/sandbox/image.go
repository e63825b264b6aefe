package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"embed"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
)

//go:embed image/Dockerfile image/entrypoint.sh image/seccomp.json
var imageAssets embed.FS

// DefaultImage is the judge container image tag.
const DefaultImage = "judgecore/sandbox:latest"

// EnsureImage makes sure the judge image exists, building it from the
// embedded assets when missing. It is a one-time, serialized step: call
// it before accepting executions, never per request. Rebuilding an
// existing image is skipped, so the call is idempotent.
func (r *Runner) EnsureImage(ctx context.Context) error {
	r.buildMu.Lock()
	defer r.buildMu.Unlock()

	if _, _, err := r.cli.ImageInspectWithRaw(ctx, r.image); err == nil {
		r.logger.Debug("judge image present", "image", r.image)
		return nil
	}

	r.logger.Info("building judge image", "image", r.image)

	buildCtx, err := buildContextTar()
	if err != nil {
		return fmt.Errorf("failed to assemble build context: %w", err)
	}

	resp, err := r.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:       []string{r.image},
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("failed to build judge image: %w", err)
	}
	defer resp.Body.Close()

	// The build runs as the body is consumed; drain it fully so a build
	// failure surfaces before the first execution.
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("failed to stream image build: %w", err)
	}

	if _, _, err := r.cli.ImageInspectWithRaw(ctx, r.image); err != nil {
		return fmt.Errorf("judge image missing after build: %w", err)
	}
	return nil
}

// PullImage fetches a pre-built judge image instead of building locally.
func (r *Runner) PullImage(ctx context.Context) error {
	r.buildMu.Lock()
	defer r.buildMu.Unlock()

	out, err := r.cli.ImagePull(ctx, r.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull judge image %s: %w", r.image, err)
	}
	defer out.Close()
	_, err = io.Copy(io.Discard, out)
	return err
}

func buildContextTar() (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	for _, name := range []string{"Dockerfile", "entrypoint.sh"} {
		content, err := imageAssets.ReadFile("image/" + name)
		if err != nil {
			return nil, err
		}
		hdr := &tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write(content); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

// seccompProfile returns the embedded syscall allow-list profile.
func seccompProfile() (string, error) {
	data, err := imageAssets.ReadFile("image/seccomp.json")
	if err != nil {
		return "", fmt.Errorf("failed to read seccomp profile: %w", err)
	}
	return string(data), nil
}
