package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/billscan/internal/content"
	"github.com/sells-group/billscan/internal/job"
	"github.com/sells-group/billscan/internal/orchestrator"
)

var processOutDir string

var processCmd = &cobra.Command{
	Use:   "process <dir>",
	Short: "Extract every document in a folder as one batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		outDir := processOutDir
		if outDir == "" {
			outDir = cfg.Output.Dir
		}
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return eris.Wrapf(err, "create output dir %s", outDir)
		}

		return runFolder(cmd.Context(), e, args[0], outDir)
	},
}

func init() {
	processCmd.Flags().StringVar(&processOutDir, "out", "", "output directory for result files (default from config)")
	rootCmd.AddCommand(processCmd)
}

func runFolder(ctx context.Context, e *env, dir, outDir string) error {
	paths, err := collectDocuments(dir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		zap.L().Warn("no documents found", zap.String("dir", dir))
		return nil
	}

	var jobs []orchestrator.BatchJob
	for _, path := range paths {
		c, err := content.FromFile(path)
		if err != nil {
			zap.L().Error("skipping unreadable document",
				zap.String("path", path),
				zap.Error(err),
			)
			continue
		}

		id := uuid.New().String()
		e.Registry.Create(id)
		jobs = append(jobs, orchestrator.BatchJob{
			ID:      id,
			Content: c,
			Name:    filepath.Base(path),
		})
	}
	if len(jobs) == 0 {
		return eris.Errorf("no readable documents in %s", dir)
	}

	e.Orchestrator.RunBatch(ctx, jobs)

	var completed, failed int
	for _, bj := range jobs {
		rec, err := e.Registry.Get(bj.ID)
		if err != nil {
			continue
		}
		if rec.Status != job.StatusCompleted || rec.Result == nil {
			failed++
			zap.L().Error("document failed",
				zap.String("document", bj.Name),
				zap.String("error", rec.Error),
			)
			continue
		}

		if err := writeResult(outDir, bj.Name, rec); err != nil {
			zap.L().Error("writing result file",
				zap.String("document", bj.Name),
				zap.Error(err),
			)
		}
		e.persistResult(ctx, bj.ID, bj.Name)
		completed++
	}

	zap.L().Info("folder processed",
		zap.String("dir", dir),
		zap.Int("completed", completed),
		zap.Int("failed", failed),
	)
	return nil
}

// collectDocuments lists the supported documents in dir, sorted by name.
func collectDocuments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "read dir %s", dir)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".pdf", ".jpg", ".jpeg", ".png":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func writeResult(outDir, docName string, rec job.Record) error {
	base := strings.TrimSuffix(docName, filepath.Ext(docName))
	path := filepath.Join(outDir, "result_"+base+".json")

	data, err := json.MarshalIndent(rec.Result, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal result")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "write %s", path)
	}

	zap.L().Info("result written",
		zap.String("document", docName),
		zap.String("path", path),
	)
	return nil
}
