package ops

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/noctfcli/internal/api"
	"github.com/hpungsan/noctfcli/internal/challenge"
)

// hashChunkSize is the read size used when hashing challenge files.
const hashChunkSize = 32 * 1024

// HashFile returns the lowercase hex SHA-256 of a file, read in fixed-size chunks.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	for {
		n, err := f.Read(buf)
		h.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("hash %s: %w", path, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileDecision says what to do with one declared file.
type FileDecision struct {
	Path  string          // as declared, relative to the definition directory
	Reuse *api.Attachment // nil: upload
}

// PlanCreate queues every declared file for upload.
func PlanCreate(cfg *challenge.Config) []FileDecision {
	plan := make([]FileDecision, len(cfg.Files))
	for i, f := range cfg.Files {
		plan[i] = FileDecision{Path: f}
	}
	return plan
}

// Reconcile matches each declared file against the existing challenge's files by
// (basename, sha256). A match reuses the remote id and keeps its is_attachment flag;
// anything else is queued for upload. Order follows the declaration.
// Two local files with identical name and content are not deduplicated.
func Reconcile(cfg *challenge.Config, baseDir string, existing *api.Challenge, remoteFiles []api.ChallengeFile) ([]FileDecision, error) {
	attachments, err := existing.Files()
	if err != nil {
		return nil, err
	}
	isAttachment := make(map[int64]bool, len(attachments))
	for _, a := range attachments {
		isAttachment[a.ID] = a.IsAttachment
	}

	plan := make([]FileDecision, 0, len(cfg.Files))
	for _, f := range cfg.Files {
		sum, err := HashFile(filepath.Join(baseDir, f))
		if err != nil {
			return nil, err
		}
		decision := FileDecision{Path: f}
		if remote := matchRemote(remoteFiles, filepath.Base(f), "sha256:"+sum); remote != nil {
			flag, listed := isAttachment[remote.ID]
			if !listed {
				flag = true
			}
			decision.Reuse = &api.Attachment{ID: remote.ID, IsAttachment: flag}
		}
		plan = append(plan, decision)
	}
	return plan, nil
}

func matchRemote(files []api.ChallengeFile, name, hash string) *api.ChallengeFile {
	for i := range files {
		if files[i].Filename == name && strings.EqualFold(files[i].Hash, hash) {
			return &files[i]
		}
	}
	return nil
}

// resolvedFiles is a plan after its queued uploads have run.
type resolvedFiles struct {
	attachments []api.Attachment
	uploaded    []string
	reused      []string
}

// applyPlan uploads queued files one at a time, in order, and returns the final
// attachment list. New files are attachments.
func applyPlan(ctx context.Context, remote Remote, baseDir string, plan []FileDecision) (*resolvedFiles, error) {
	out := &resolvedFiles{attachments: make([]api.Attachment, 0, len(plan))}
	for _, d := range plan {
		if d.Reuse != nil {
			out.attachments = append(out.attachments, *d.Reuse)
			out.reused = append(out.reused, d.Path)
			continue
		}
		uploaded, err := remote.UploadFile(ctx, filepath.Join(baseDir, d.Path))
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", d.Path, err)
		}
		out.attachments = append(out.attachments, api.Attachment{ID: uploaded.ID, IsAttachment: true})
		out.uploaded = append(out.uploaded, d.Path)
	}
	return out, nil
}
