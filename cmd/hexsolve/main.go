// hexsolve is the batch CLI surface of spec §6: load a ground-program
// document, drive the orchestrator pipeline, and print every answer set it
// finds. Exit codes: 0 = consistent (at least one model printed), 1 =
// inconsistent (zero models), 2 = error.
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hexsolve/internal/config"
	"hexsolve/internal/groundtext"
	"hexsolve/internal/herror"
	"hexsolve/internal/id"
	"hexsolve/internal/logging"
	"hexsolve/internal/orchestrator"
	"hexsolve/internal/plugin"
	"hexsolve/internal/pluginloader"
	"hexsolve/internal/registry"
	"hexsolve/internal/solver"
)

var (
	cfgPath      string
	verbose      int
	filter       []string
	firstModel   bool
	noFacts      bool
	maxModels    int
	solverName   string
	claspConfig  string
	claspDeferMS int
	claspDeferN  int
	integrateOpt bool
	pluginPath   []string
	benchmarkOn  bool

	log *zap.Logger
)

var (
	modelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#22c55e"))
	atomStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#93c5fd"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ef4444"))
)

var rootCmd = &cobra.Command{
	Use:   "hexsolve [ground-program.json]",
	Short: "hexsolve - a CDNL-based solver for HEX programs with external atoms",
	Args:  cobra.ExactArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		overlayFlags(cfg)

		l, err := logging.New(cfg.Logging, cfg.Verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		log = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
	RunE: runSolve,
}

func overlayFlags(cfg *config.Config) {
	if verbose > 0 {
		cfg.Verbose = verbose
	}
	if len(filter) > 0 {
		cfg.Filter = filter
	}
	cfg.FirstModel = cfg.FirstModel || firstModel
	cfg.NoFacts = cfg.NoFacts || noFacts
	if maxModels > 0 {
		cfg.MaxModels = maxModels
	}
	if solverName != "" {
		cfg.Solver = solverName
	}
	if claspConfig != "" {
		cfg.ClaspConfig = claspConfig
	}
	if claspDeferMS > 0 {
		cfg.ClaspDeferMS = claspDeferMS
	}
	if claspDeferN > 0 {
		cfg.ClaspDeferN = claspDeferN
	}
	cfg.IntegrateNextOpt = cfg.IntegrateNextOpt || integrateOpt
	for _, p := range pluginPath {
		cfg.PluginPath = append(cfg.PluginPath, strings.Split(p, ":")...)
	}
	cfg.Benchmark = cfg.Benchmark || benchmarkOn
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgPath, "config", "hexsolve.yaml", "path to the YAML config file")
	flags.IntVar(&verbose, "verbose", 0, "verbosity level (0 = quiet)")
	flags.StringSliceVar(&filter, "filter", nil, "only print atoms of these predicates in answer sets")
	flags.BoolVar(&firstModel, "firstmodel", false, "stop after the first answer set")
	flags.BoolVar(&noFacts, "nofacts", false, "suppress EDB facts from answer-set output")
	flags.IntVar(&maxModels, "maxmodels", 0, "stop after N answer sets (0 = unbounded)")
	flags.StringVar(&solverName, "solver", "", "internal|clasp (default: config file value, usually internal)")
	flags.StringVar(&claspConfig, "claspconfig", "", "frumpy|jumpy|handy|crafty|trendy|<raw clasp config>")
	flags.IntVar(&claspDeferMS, "claspdefer-ms", 0, "minimum wall-clock ms between external-propagator rounds")
	flags.IntVar(&claspDeferN, "claspdefer-n", 0, "minimum fixpoints skipped between external-propagator rounds")
	flags.BoolVar(&integrateOpt, "integratenextopt", false, "no effect: the internal solver always applies a tightened optimum bound as soon as it is found")
	flags.StringSliceVar(&pluginPath, "pluginpath", nil, "colon-separated plugin search directories (repeatable)")
	flags.BoolVar(&benchmarkOn, "benchmark", false, "emit BM: timing lines on stderr")
}

func runSolve(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	overlayFlags(cfg)

	if cfg.Solver == "clasp" {
		return herror.Usagef("--solver=clasp: no external clasp backend is registered in this build; use --solver=internal")
	}

	reg := registry.New()
	plugins := plugin.NewRegistry()

	if _, err := pluginloader.Load(cfg.PluginPath, plugins); err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read ground program %s: %w", args[0], err)
	}
	prog, err := groundtext.Load(data, reg, plugins)
	if err != nil {
		return err
	}

	session := orchestrator.New(reg, plugins, cfg, log)
	backend, err := session.Run(cmd.Context(), prog)
	if err != nil {
		return err
	}

	count := 0
	for model := range backend.Solve(cmd.Context(), nil, nil) {
		count++
		printModel(reg, prog, model, cfg)
		if cfg.FirstModel {
			break
		}
	}

	if count == 0 {
		fmt.Println(errorStyle.Render("INCONSISTENT: no answer sets"))
		os.Exit(1)
	}
	return nil
}

func printModel(reg *registry.Registry, prog orchestrator.Program, model *solver.Model, cfg *config.Config) {
	var atoms []string
	model.Atoms.Each(func(addr uint32) bool {
		if cfg.NoFacts && prog.EDB.Contains(addr) {
			return true
		}
		aid := id.New(id.KindAtom, id.AtomOrdinaryGround, id.Props{}, false, addr)
		text := reg.AtomText(aid)
		if len(cfg.Filter) > 0 && !matchesFilter(text, cfg.Filter) {
			return true
		}
		atoms = append(atoms, text)
		return true
	})
	sort.Strings(atoms)
	fmt.Printf("%s {%s}\n", modelStyle.Render("Answer:"), atomStyle.Render(strings.Join(atoms, ", ")))
}

func matchesFilter(text string, preds []string) bool {
	for _, p := range preds {
		if strings.HasPrefix(text, p+"(") || text == p {
			return true
		}
	}
	return false
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(2)
	}
}
