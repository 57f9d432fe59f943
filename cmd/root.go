package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/op/go-logging"
	"github.com/spf13/cobra"
)

// startupParams holds everything the experiment driver needs from the
// command line.
type startupParams struct {
	verbose     bool
	randomSeed  int64
	numUnits    int
	timeSteps   int
	numSweeps   int
	burnIn      int
	samplerName string
	proposePri  bool
	sliceWeight bool
	initMap     bool
	latentDim   int
	monitorAddr string

	out *log.Logger
	mon *monitor
}

var sp = &startupParams{}

// rootCmd runs a full recovery experiment: simulate a ground truth network,
// then try to recover it from the spikes alone.
var rootCmd = &cobra.Command{
	Use:   "netglm",
	Short: "Posterior inference for networks of coupled point-process GLMs",
	Long: `netglm samples the joint posterior over a sparse weighted directed
network and the point-process GLM parameters it couples. Among other
features:

  - A collapsed Gibbs sampler for edges (weight marginalized by quadrature)
  - A plain two-block edge/weight Gibbs sampler
  - HMC updates for GLM parameters with adaptive step sizes
  - An optional latent distance graph prior with sampled unit locations
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(sp.verbose)

		sp.out = log.New(os.Stdout, "", 0)
		sp.out.Printf("netglm\n")
		sp.out.Printf("Verbose:  %v\n", sp.verbose)
		sp.out.Printf("Units:    %d\n", sp.numUnits)
		sp.out.Printf("Bins:     %d\n", sp.timeSteps)
		sp.out.Printf("Sweeps:   %d (burn-in %d)\n", sp.numSweeps, sp.burnIn)
		sp.out.Printf("Sampler:  %s\n", sp.samplerName)
		sp.out.Printf("Rnd Seed: %d\n", sp.randomSeed)

		if len(sp.monitorAddr) > 0 {
			sp.mon = &monitor{addr: sp.monitorAddr}
			if err := sp.mon.Start(); err != nil {
				return err
			}
			defer sp.mon.Stop()
		}

		return RunExperiment(sp)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.PersistentFlags().BoolVarP(&sp.verbose, "verbose", "v", false, "Verbose logging (default is much more parsimonious)")
	rootCmd.PersistentFlags().Int64VarP(&sp.randomSeed, "seed", "r", 1, "Random seed to use")

	rootCmd.PersistentFlags().IntVarP(&sp.numUnits, "units", "n", 10, "Number of units in the simulated population")
	rootCmd.PersistentFlags().IntVarP(&sp.timeSteps, "bins", "t", 2000, "Number of time bins to simulate")
	rootCmd.PersistentFlags().IntVarP(&sp.numSweeps, "sweeps", "i", 500, "Number of Gibbs sweeps to run")
	rootCmd.PersistentFlags().IntVarP(&sp.burnIn, "burnin", "b", 100, "Sweeps to discard before estimating marginals")
	rootCmd.PersistentFlags().StringVarP(&sp.samplerName, "sampler", "s", "collapsed", "Network sampler to use (collapsed or plain)")
	rootCmd.PersistentFlags().BoolVar(&sp.proposePri, "propose-prior", false, "Collapsed sampler proposes edges from the prior (Metropolis mode)")
	rootCmd.PersistentFlags().BoolVar(&sp.sliceWeight, "slice-weight", false, "Collapsed sampler slice-samples weights instead of bin interpolation")
	rootCmd.PersistentFlags().BoolVar(&sp.initMap, "init-map", false, "Initialize the chain from a dense MAP fit instead of a prior draw")
	rootCmd.PersistentFlags().IntVar(&sp.latentDim, "latent", 0, "Dimension of the latent distance graph prior (0 disables)")
	rootCmd.PersistentFlags().StringVar(&sp.monitorAddr, "monitor", "", "Address for the HTTP progress monitor (e.g. :8000, empty disables)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func setupLogging(verbose bool) {
	format := logging.MustStringFormatter(`%{time:15:04:05.000} %{level:.4s} %{message}`)
	backend := logging.NewBackendFormatter(logging.NewLogBackend(os.Stderr, "", 0), format)
	leveled := logging.AddModuleLevel(backend)
	if verbose {
		leveled.SetLevel(logging.DEBUG, "")
	} else {
		leveled.SetLevel(logging.WARNING, "")
	}
	logging.SetBackend(leveled)
}
