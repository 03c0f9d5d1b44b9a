package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/tslatency/internal/integrity"
	"github.com/MeKo-Tech/tslatency/internal/latency"
	"github.com/MeKo-Tech/tslatency/internal/pixelcodec"
	"github.com/spf13/cobra"
)

// contractCmd represents the contract command.
var contractCmd = &cobra.Command{
	Use:   "contract",
	Short: "Print the wire contract of the configured stamper",
	Long: `Print everything a third-party reader needs to decode stamps written with
the current configuration: the region and cell geometry, pixel levels, the
payload layout and the integrity scheme parameters.

Examples:
  tslatency contract
  tslatency contract --variant fast-robust --format json`,
	Args: cobra.NoArgs,
	RunE: runContract,
}

func init() {
	rootCmd.AddCommand(contractCmd)
	addOutputFlags(contractCmd)
}

// contractDocument is the printed contract.
type contractDocument struct {
	Contract     integrity.Contract `json:"contract" yaml:"contract"`
	Layout       pixelcodec.Layout  `json:"layout" yaml:"layout"`
	CapacityBits int                `json:"capacity_bits" yaml:"capacity_bits"`
	Levels       pixelcodec.Levels  `json:"levels" yaml:"levels"`
	Tolerance    int                `json:"tolerance" yaml:"tolerance"`
}

func runContract(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	lcfg, err := cfg.ToLatencyConfig()
	if err != nil {
		return err
	}
	st, err := latency.NewStamper(lcfg)
	if err != nil {
		return err
	}
	doc := contractDocument{
		Contract:     st.Contract(),
		Layout:       lcfg.Layout,
		CapacityBits: lcfg.Layout.Capacity(),
		Levels:       lcfg.Levels,
		Tolerance:    lcfg.Tolerance,
	}

	w, closeOutput, err := openOutput(cmd, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeOutput() }()

	if cfg.Output.Format != formatText {
		return writeStructured(w, cfg.Output.Format, doc)
	}

	p := newPrinter()
	c := doc.Contract
	r := doc.Layout.Region
	lines := []string{
		p.Sprintf("Variant:    %s", c.Variant),
		p.Sprintf("Integrity:  %s", c.Integrity),
		p.Sprintf("Region:     x=%d y=%d %dx%d", r.X, r.Y, r.Width, r.Height),
		p.Sprintf("Cells:      %dx%d px, %d columns x %d rows, %d bits",
			doc.Layout.CellSize, doc.Layout.CellSize, doc.Layout.Columns(), doc.Layout.Rows(), doc.CapacityBits),
		p.Sprintf("Levels:     0=%d 1=%d, tolerance %d", doc.Levels.Low, doc.Levels.High, doc.Tolerance),
		p.Sprintf("Payload:    %d bits (64-bit timestamp ns, 16-bit sequence, big endian)", c.PayloadBits),
		p.Sprintf("Codeword:   %d bits", c.CodewordBits),
	}
	if c.CRC != "" {
		lines = append(lines, p.Sprintf("CRC:        %s", c.CRC))
	}
	if c.BCH != nil {
		lines = append(lines, p.Sprintf("BCH:        %s", c.BCH))
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
