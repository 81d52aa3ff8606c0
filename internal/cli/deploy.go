package cli

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/ticketchain/internal/core/domain"
	"github.com/vietddude/ticketchain/internal/pipeline"
)

var (
	deployFile  string
	deployEvent string
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy an event and its ticket tiers from a YAML file",
	Long: `Deploy creates the event through the factory and then adds each tier.
With --event, only the tiers of the file are added to an existing event,
which is how a partially failed deployment is completed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readEventFile(deployFile)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return runDeploy(ctx, cmd, a, cfg)
		})
	},
}

func init() {
	deployCmd.Flags().StringVarP(&deployFile, "file", "f", "event.yaml", "event definition file")
	deployCmd.Flags().StringVar(&deployEvent, "event", "", "add the file's tiers to this deployed event")
}

// eventFile is the on-disk event definition. Prices are decimal token amounts.
type eventFile struct {
	Name         string     `yaml:"name"`
	Description  string     `yaml:"description"`
	Date         string     `yaml:"date"`
	Venue        string     `yaml:"venue"`
	IPFSMetadata string     `yaml:"ipfs_metadata"`
	Tiers        []tierFile `yaml:"tiers"`
}

type tierFile struct {
	Name           string `yaml:"name"`
	Description    string `yaml:"description"`
	Price          string `yaml:"price"`
	Available      uint64 `yaml:"available"`
	MaxPerPurchase uint64 `yaml:"max_per_purchase"`
}

func readEventFile(path string) (pipeline.EventConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.EventConfig{}, fmt.Errorf("failed to read event file: %w", err)
	}
	return parseEventFile(data)
}

func parseEventFile(data []byte) (pipeline.EventConfig, error) {
	const op = "event file"
	var f eventFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &f); err != nil {
		return pipeline.EventConfig{}, domain.NewError(domain.KindInvalidInput, op, err)
	}

	date, err := time.Parse(time.RFC3339, f.Date)
	if err != nil {
		return pipeline.EventConfig{}, domain.NewError(domain.KindInvalidInput, op,
			fmt.Errorf("date %q: expected RFC3339", f.Date))
	}

	cfg := pipeline.EventConfig{
		Name:         f.Name,
		Description:  f.Description,
		Date:         date,
		Venue:        f.Venue,
		IPFSMetadata: f.IPFSMetadata,
	}
	for i, t := range f.Tiers {
		price, err := domain.ParseAmount(t.Price)
		if err != nil {
			return pipeline.EventConfig{}, domain.NewError(domain.KindInvalidInput, op,
				fmt.Errorf("tier %d price: %w", i, err))
		}
		cfg.Tiers = append(cfg.Tiers, pipeline.TierConfig{
			Name:           t.Name,
			Description:    t.Description,
			Price:          price,
			Available:      new(big.Int).SetUint64(t.Available),
			MaxPerPurchase: new(big.Int).SetUint64(t.MaxPerPurchase),
		})
	}
	return cfg, nil
}

func runDeploy(ctx context.Context, cmd *cobra.Command, a *app, cfg pipeline.EventConfig) error {
	pc, role, err := a.pipelineContext(ctx)
	if err != nil {
		return err
	}
	if !role.CanDeploy() {
		return domain.NewError(domain.KindInvalidInput, "deploy",
			fmt.Errorf("role %s may not deploy events", role))
	}

	var d *pipeline.Deployment
	if deployEvent != "" {
		d, err = a.pipeline.RetryTiers(pc, deployEvent, cfg.Tiers)
	} else {
		d, err = a.pipeline.PrepareDeploy(pc, cfg)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	done := follow(out, d.Workflow())
	res, runErr := d.Run(ctx)
	<-done

	if res == nil {
		return runErr
	}
	printSteps(out, res.Result)
	if res.EventAddress != "" {
		fmt.Fprintf(out, "event: %s\n", res.EventAddress)
	}
	fmt.Fprintf(out, "tiers created: %d, pending: %d\n", len(res.TiersCreated), len(res.TiersPending))
	if runErr != nil && res.EventAddress != "" && len(res.TiersPending) > 0 {
		fmt.Fprintf(out, "complete with: ticketchain deploy --file %s --event %s (remove created tiers from the file first)\n",
			deployFile, res.EventAddress)
	}
	return runErr
}
