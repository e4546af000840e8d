package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/risk-sentinel/sentinel-cli/internal/model"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file...>",
	Short: "Ingest raw risk statements from JSON or JSONL files",
	Long:  "Reads collector output (a JSON array or one JSON object per line) and persists the statements. Re-ingesting the same batch is a no-op.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var statements []model.RawRiskStatement
		for _, path := range args {
			batch, err := readStatements(path)
			if err != nil {
				return eris.Wrapf(err, "ingest %s", path)
			}
			statements = append(statements, batch...)
		}

		for i := range statements {
			if err := validateStatement(statements[i]); err != nil {
				return err
			}
			if statements[i].ID == "" {
				statements[i].ID = uuid.New().String()
			}
		}

		written, err := st.UpsertStatements(ctx, statements)
		if err != nil {
			return eris.Wrap(err, "upsert statements")
		}

		zap.L().Info("ingest complete",
			zap.Int("read", len(statements)),
			zap.Int("written", written),
			zap.Int("duplicates", len(statements)-written),
		)
		return nil
	},
}

// readStatements parses a JSON array or JSONL file of raw statements.
func readStatements(path string) ([]model.RawRiskStatement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var statements []model.RawRiskStatement
		if err := json.Unmarshal(trimmed, &statements); err != nil {
			return nil, eris.Wrap(err, "parse json array")
		}
		return statements, nil
	}

	var statements []model.RawRiskStatement
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var stm model.RawRiskStatement
		if err := json.Unmarshal([]byte(text), &stm); err != nil {
			return nil, eris.Wrapf(err, "parse jsonl line %d", line)
		}
		statements = append(statements, stm)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "scan jsonl")
	}
	return statements, nil
}

func validateStatement(stm model.RawRiskStatement) error {
	if !model.ValidSourceType(stm.SourceType) {
		return eris.Errorf("statement %q: unknown source_type %q", stm.OriginRef, stm.SourceType)
	}
	if strings.TrimSpace(stm.Text) == "" {
		return eris.Errorf("statement %q: empty text", stm.OriginRef)
	}
	if stm.SourceID == "" || stm.OriginRef == "" {
		return eris.New("statements require source_id and origin_ref")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
