package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/legdb/pkg/legdb"
)

// pipelineDoc is the YAML shape `query` accepts: a source table plus an
// ordered list of steps. Only one predicate-bearing key is read per step
// entry; additional keys are ignored, which is enough for a CLI debugging
// aid without building a full expression language.
type pipelineDoc struct {
	Source string       `yaml:"source"`
	Steps  []stepDoc    `yaml:"steps"`
}

type stepDoc struct {
	Has     map[string]interface{} `yaml:"has"`
	EdgeIn  map[string]interface{} `yaml:"edge_in"`
	EdgeOut map[string]interface{} `yaml:"edge_out"`
	EdgeAll map[string]interface{} `yaml:"edge_all"`
}

var queryCmd = &cobra.Command{
	Use:   "query <pipeline.yaml>",
	Short: "Run a pipeline described as YAML and print matching documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var doc pipelineDoc
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("parsing pipeline: %w", err)
		}
		if doc.Source == "" {
			return fmt.Errorf("pipeline YAML must set source")
		}

		db, err := legdb.Open(legdb.Config{Path: dbPath(cmd), ReadOnly: true})
		if err != nil {
			return err
		}
		defer db.Close()

		p := legdb.NewPipeline().Source(doc.Source)
		for _, s := range doc.Steps {
			switch {
			case s.Has != nil:
				p = p.Has(toPredicate(s.Has))
			case s.EdgeIn != nil:
				p = p.EdgeIn(toPredicate(s.EdgeIn))
			case s.EdgeOut != nil:
				p = p.EdgeOut(toPredicate(s.EdgeOut))
			case s.EdgeAll != nil:
				p = p.EdgeAll(toPredicate(s.EdgeAll))
			}
		}

		rows, err := p.Run(db, nil)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			if err := printDocument(rows.Item().Doc); err != nil {
				return err
			}
		}
		return rows.Err()
	},
}

func toPredicate(raw map[string]interface{}) map[string]legdb.Value {
	out := make(map[string]legdb.Value, len(raw))
	for k, v := range raw {
		out[k] = toValue(v)
	}
	return out
}

func toValue(v interface{}) legdb.Value {
	switch t := v.(type) {
	case string:
		return legdb.StringValue(t)
	case int:
		return legdb.IntValue(int64(t))
	case int64:
		return legdb.IntValue(t)
	case float64:
		return legdb.FloatValue(t)
	case bool:
		return legdb.BoolValue(t)
	default:
		return legdb.Nil()
	}
}
