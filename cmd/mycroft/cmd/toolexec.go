package cmd

import (
	"fmt"
	"go/printer"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amirkhaki/mycroft/pkg/instrument"
)

// toolexecCmd represents the toolexec command
var toolexecCmd = &cobra.Command{
	Use:                "toolexec",
	Short:              "go build -toolexec 'mycroft toolexec'",
	Long:               ``,
	DisableFlagParsing: true,
	Args:               cobra.MinimumNArgs(1),
	Run:                handleToolExec,
}

func init() {
	rootCmd.AddCommand(toolexecCmd)
}

// runtimePkgPath is the package every instrumented file ends up importing.
const runtimePkgPath = "github.com/amirkhaki/mycroft/pkg/runtime"

// handleToolExec intercepts go tool commands when used with -toolexec
func handleToolExec(cmd *cobra.Command, args []string) {
	// Args: [mycroft, /path/to/compile, compile-args...]
	tool := args[0]
	args = args[1:]

	if strings.HasSuffix(tool, "link") {
		handleLinkCommand(tool, args)
		return
	}

	// Only instrument for compile commands; asm and friends pass through.
	if !strings.HasSuffix(tool, "compile") {
		passThrough(tool, args)
		return
	}

	goroot := lookupGoroot()

	var goFiles []string
	var importcfgPath string
	for i, arg := range args {
		if strings.HasSuffix(arg, ".go") && !strings.HasPrefix(arg, "-") {
			// Standard library sources stay untouched.
			if goroot != "" && strings.HasPrefix(filepath.Clean(arg), filepath.Clean(goroot)) {
				continue
			}
			goFiles = append(goFiles, arg)
		}
		if arg == "-importcfg" && i+1 < len(args) {
			importcfgPath = args[i+1]
		}
	}

	if len(goFiles) == 0 {
		passThrough(tool, args)
		return
	}

	// Use Go's work directory if available, otherwise create a temp directory.
	tempDir := os.Getenv("WORK")
	if tempDir == "" {
		var err error
		tempDir, err = os.MkdirTemp("", "mycroft_*")
		if err != nil {
			fmt.Fprintf(os.Stderr, "mycroft: failed to create temp dir: %v\n", err)
			os.Exit(1)
		}
		defer os.RemoveAll(tempDir)
	}

	instrumentedFiles, wasInstrumented, err := instrumentFilesToDir(goFiles, tempDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mycroft: failed to instrument: %v\n", err)
		os.Exit(1)
	}

	fileMap := make(map[string]string)
	for i, origFile := range goFiles {
		fileMap[origFile] = instrumentedFiles[i]
	}

	// Only touch the importcfg if instrumentation actually added the runtime
	// import.
	newImportcfgPath := importcfgPath
	if wasInstrumented && importcfgPath != "" {
		newImportcfgPath, err = appendRuntimeEntry(importcfgPath, tempDir, "importcfg")
		if err != nil {
			fmt.Fprintf(os.Stderr, "mycroft: failed to modify importcfg: %v\n", err)
			os.Exit(1)
		}
	}

	var newArgs []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case fileMap[arg] != "":
			newArgs = append(newArgs, fileMap[arg])
		case arg == "-importcfg" && newImportcfgPath != importcfgPath:
			newArgs = append(newArgs, arg, newImportcfgPath)
			i++
		default:
			newArgs = append(newArgs, arg)
		}
	}

	passThrough(tool, newArgs)
}

// handleLinkCommand makes the runtime package visible to the linker when the
// build was instrumented.
func handleLinkCommand(tool string, args []string) {
	var importcfgPath string
	for i, arg := range args {
		if arg == "-importcfg" && i+1 < len(args) {
			importcfgPath = os.ExpandEnv(args[i+1])
			break
		}
	}
	if importcfgPath == "" || runtimeArchive() == "" {
		passThrough(tool, args)
		return
	}

	tempDir, err := os.MkdirTemp("", "mycroft_link_*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "mycroft: warning: failed to create temp dir: %v\n", err)
		passThrough(tool, args)
		return
	}
	defer os.RemoveAll(tempDir)

	newImportcfgPath, err := appendRuntimeEntry(importcfgPath, tempDir, "importcfg.link")
	if err != nil {
		fmt.Fprintf(os.Stderr, "mycroft: warning: failed to modify link importcfg: %v\n", err)
	} else {
		for i, arg := range args {
			if arg == "-importcfg" && i+1 < len(args) {
				args[i+1] = newImportcfgPath
				break
			}
		}
	}

	passThrough(tool, args)
}

// passThrough runs the original tool unchanged, mirroring its exit code.
func passThrough(tool string, args []string) {
	cmd := exec.Command(tool, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Exit(exitErr.ExitCode())
		}
		os.Exit(1)
	}
}

func lookupGoroot() string {
	if goroot := os.Getenv("GOROOT"); goroot != "" {
		return goroot
	}
	if out, err := exec.Command("go", "env", "GOROOT").Output(); err == nil {
		return strings.TrimSpace(string(out))
	}
	return ""
}

// runtimeArchive returns the prebuilt export archive of the runtime package.
// The build wrapper sets MYCROFT_RUNTIME_ARCHIVE after compiling the runtime
// once per build; the toolexec steps only wire it into importcfg files.
func runtimeArchive() string {
	return os.Getenv("MYCROFT_RUNTIME_ARCHIVE")
}

// appendRuntimeEntry writes a copy of the importcfg with the runtime package
// entry appended.
func appendRuntimeEntry(originalPath, tempDir, name string) (string, error) {
	archive := runtimeArchive()
	if archive == "" {
		return originalPath, fmt.Errorf("MYCROFT_RUNTIME_ARCHIVE is not set")
	}

	content, err := os.ReadFile(originalPath)
	if err != nil {
		return "", err
	}
	if strings.Contains(string(content), "packagefile "+runtimePkgPath+"=") {
		return originalPath, nil
	}

	newContent := string(content) + fmt.Sprintf("packagefile %s=%s\n", runtimePkgPath, archive)
	newPath := filepath.Join(tempDir, name)
	if err := os.WriteFile(newPath, []byte(newContent), 0o644); err != nil {
		return "", err
	}
	return newPath, nil
}

// instrumentFilesToDir instruments multiple files together and writes them to
// the target directory. Returns the instrumented file paths and whether any
// instrumentation was added.
func instrumentFilesToDir(goFiles []string, targetDir string) ([]string, bool, error) {
	instr := instrument.NewInstrumenter(nil)
	fset := token.NewFileSet()

	instrumentedASTs, err := instr.InstrumentFiles(fset, goFiles)
	if err != nil {
		return nil, false, err
	}

	outputFiles := make([]string, len(goFiles))
	for i, origFile := range goFiles {
		outputPath := filepath.Join(targetDir, filepath.Base(origFile))

		f, err := os.Create(outputPath)
		if err != nil {
			return nil, false, fmt.Errorf("failed to create %s: %w", outputPath, err)
		}
		err = printer.Fprint(f, fset, instrumentedASTs[i])
		f.Close()
		if err != nil {
			return nil, false, fmt.Errorf("failed to write %s: %w", outputPath, err)
		}
		outputFiles[i] = outputPath
	}

	return outputFiles, instr.WasInstrumented(), nil
}
