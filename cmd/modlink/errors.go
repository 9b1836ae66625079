// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/modlink/modlink/internal/config"
	"github.com/modlink/modlink/internal/issue"
	"github.com/modlink/modlink/internal/linker"
	"github.com/modlink/modlink/pkg/archive"
	"github.com/modlink/modlink/pkg/descriptor"
	"github.com/modlink/modlink/pkg/finder"
	"github.com/modlink/modlink/pkg/image"
	"github.com/modlink/modlink/pkg/plugin"
	"github.com/modlink/modlink/pkg/resolve"
)

type classification struct {
	code        ExitCode
	issue       issue.Id
	suggestions []string
}

// classifyError maps a command failure to an exit code, an issue catalogue
// entry and suggestions. The first matching rule wins.
func classifyError(err error) classification {
	switch {
	case errors.Is(err, resolve.ErrNoRoots):
		return classification{ExitBadArgs, issue.NoRootModulesId, []string{"Name the root modules with --add-modules"}}
	case errors.Is(err, image.ErrOutputExists):
		return classification{ExitBadArgs, issue.OutputExistsId, []string{"Choose another --output directory or remove the existing one"}}
	case isOutputExists(err):
		return classification{ExitBadArgs, issue.OutputExistsId, []string{"Choose another directory or remove the existing one"}}
	case errors.Is(err, linker.ErrInvalidOptions),
		errors.Is(err, finder.ErrNoSearchPath),
		errors.Is(err, descriptor.ErrInvalidModuleName):
		return classification{ExitBadArgs, issue.InvalidOptionsId, []string{"Run with --help to see the expected arguments"}}
	case errors.Is(err, plugin.ErrUnknownStage), errors.Is(err, plugin.ErrInvalidStageConfig):
		return classification{ExitBadArgs, issue.InvalidOptionsId, []string{"Check the plugins list of your configuration"}}
	case errors.Is(err, config.ErrInvalidConfig):
		return classification{ExitBadArgs, issue.ConfigLoadFailedId, []string{"Run 'modlink config show' to inspect the effective configuration"}}
	case errors.Is(err, resolve.ErrModuleNotFound):
		return classification{ExitFailure, issue.ModuleNotFoundId, []string{"List the available modules with 'modlink modules -p <path>'"}}
	case errors.Is(err, finder.ErrDuplicateModule):
		return classification{ExitFailure, issue.DuplicateModuleId, nil}
	case errors.Is(err, resolve.ErrPackageConflict):
		return classification{ExitFailure, issue.PackageConflictId, nil}
	case errors.Is(err, descriptor.ErrInvalidDescriptor):
		return classification{ExitFailure, issue.InvalidDescriptorId, nil}
	case errors.Is(err, archive.ErrInvalidArchive):
		return classification{ExitFailure, issue.InvalidArchiveId, nil}
	case errors.Is(err, image.ErrMissingReleaseAttribute):
		return classification{ExitFailure, issue.MissingReleaseAttributeId, []string{"Check the os_name of the base module, or pass --base-module"}}
	case errors.Is(err, image.ErrDanglingLink):
		return classification{ExitFailure, issue.DanglingLinkId, nil}
	case errors.Is(err, image.ErrReservedName):
		return classification{ExitFailure, 0, []string{"Drop the entry with the exclude-files plugin or rename it in its module"}}
	case errors.Is(err, image.ErrDestinationConflict):
		return classification{ExitFailure, issue.DestinationConflictId, nil}
	case errors.Is(err, os.ErrPermission):
		return classification{ExitSystem, issue.PermissionDeniedId, nil}
	case errors.Is(err, image.ErrWrite), isPathError(err):
		return classification{ExitSystem, 0, nil}
	default:
		return classification{ExitFailure, 0, nil}
	}
}

func isOutputExists(err error) bool {
	var optErr *linker.OptionsError
	return errors.As(err, &optErr) && strings.HasSuffix(optErr.Reason, "already exists")
}

func isPathError(err error) bool {
	var pathErr *fs.PathError
	return errors.As(err, &pathErr)
}

// renderError writes err as an actionable error to w and returns the exit
// code it maps to. In verbose mode the matching issue catalogue entry is
// rendered as well.
func renderError(w io.Writer, operation string, err error, verbose bool) ExitCode {
	c := classifyError(err)

	var ae *issue.ActionableError
	if errors.As(err, &ae) && ae.Issue != 0 {
		c.issue = ae.Issue
	} else if ae == nil {
		ae = issue.NewErrorContext().
			WithOperation(operation).
			WithSuggestions(c.suggestions...).
			WithIssue(c.issue).
			Wrap(err).
			Build()
	}
	fmt.Fprintf(w, "\n%s %s\n", ErrorStyle.Render("Error:"), ae.Format(verbose))

	if !verbose || c.issue == 0 {
		return c.code
	}
	if entry := issue.Get(c.issue); entry != nil {
		rendered, renderErr := entry.Render("dark")
		if renderErr != nil {
			slog.Warn("failed to render issue catalogue entry", "issue", c.issue, "error", renderErr)
		} else {
			fmt.Fprint(w, rendered)
		}
	}
	return c.code
}
