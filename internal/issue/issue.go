// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type Id int

const (
	ModuleNotFoundId Id = iota + 1
	NoRootModulesId
	DuplicateModuleId
	PackageConflictId
	InvalidDescriptorId
	InvalidArchiveId
	MissingReleaseAttributeId
	DanglingLinkId
	DestinationConflictId
	OutputExistsId
	InvalidOptionsId
	ConfigLoadFailedId
	PermissionDeniedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink
	extLinks []HttpLink // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n## See also\n"
		for _, link := range i.docLinks {
			extraMd += "\n- <" + string(link) + ">"
		}
		for _, link := range i.extLinks {
			extraMd += "\n- <" + string(link) + ">"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	moduleNotFoundIssue = &Issue{
		id: ModuleNotFoundId,
		mdMsg: `
# Module not found!

A root module, or a module required by one, is not in any location of the
module path.

## Things you can try:
- Check the spelling in ` + "`--add-modules`" + ` and in the ` + "`requires`" + ` list of module.cue
- Add the directory holding the module to the module path:
~~~
$ modlink link -p mods:libs --add-modules app --output image
~~~

- List what the module path actually provides:
~~~
$ modlink modules -p mods:libs
~~~

- When using ` + "`--limit-modules`" + `, make sure the limit set includes every
  transitive requirement`,
	}

	noRootModulesIssue = &Issue{
		id: NoRootModulesId,
		mdMsg: `
# Nothing to link!

No root modules were given, so the image would be empty.

## Things you can try:
- Name the modules to link:
~~~
$ modlink link -p mods --add-modules app --output image
~~~`,
	}

	duplicateModuleIssue = &Issue{
		id: DuplicateModuleId,
		mdMsg: `
# Module defined twice!

One location of the module path contains two archives declaring the same
module name. Across locations the first one wins, but within one location the
choice would be arbitrary.

## Things you can try:
- Remove one of the two archives
- Move one of them to a separate directory and order the module path`,
	}

	packageConflictIssue = &Issue{
		id: PackageConflictId,
		mdMsg: `
# Package split across modules!

Two resolved modules declare the same package. A package must belong to
exactly one module of an image.

## Things you can try:
- Rename the package in one of the modules
- Merge the modules
- Exclude one of them with ` + "`--limit-modules`",
	}

	invalidDescriptorIssue = &Issue{
		id: InvalidDescriptorId,
		mdMsg: `
# Invalid module.cue!

A module descriptor does not match the schema or breaks a rule the schema
cannot express.

## Common issues:
- Module or package names that are not dotted identifiers
- A module requiring itself or listing a requirement twice
- A package that is both exported and concealed
- Hashes that are not of the form ` + "`sha256:<hex>`" + `

## Example module.cue:
~~~cue
name:     "com.example.app"
version:  "1.0.0"
requires: ["base"]
exports:  ["com.example.app"]
main_class: "com.example.app.Main"
~~~`,
	}

	invalidArchiveIssue = &Issue{
		id: InvalidArchiveId,
		mdMsg: `
# Unreadable module archive!

A file on the module path looked like a module archive but could not be read.

## Things you can try:
- Check that ` + "`.zip`" + `, ` + "`.jar`" + ` and ` + "`.lmod`" + ` files are complete zip archives
- Recreate packed modules:
~~~
$ modlink pack path/to/module -o module.lmod
~~~`,
	}

	missingReleaseAttributeIssue = &Issue{
		id: MissingReleaseAttributeId,
		mdMsg: `
# Release information missing!

The base module is not part of the image or does not declare the target
operating system. Nothing has been written.

## Things you can try:
- Make sure the base module is resolved (it is usually required by every module)
- Declare the target platform in the base module's module.cue:
~~~cue
name:    "base"
os_name: "Linux"
os_arch: "amd64"
~~~

- Use ` + "`base_module`" + ` in the configuration when the base module has another name`,
	}

	danglingLinkIssue = &Issue{
		id: DanglingLinkId,
		mdMsg: `
# Link without target!

A link entry points to a path that is not part of the image.

## Things you can try:
- Check the ` + "`links`" + ` of the symlinks stage in your configuration
- Make sure no earlier stage excludes the target`,
	}

	destinationConflictIssue = &Issue{
		id: DestinationConflictId,
		mdMsg: `
# Two files for one image path!

Two entries would be written to the same location of the image, for example
two modules shipping the same configuration file or a native command named
like a generated launcher.

## Things you can try:
- Rename the file in one of the modules
- Drop one of them with the exclude-files stage:
~~~cue
plugins: [{name: "exclude-files", patterns: ["app/conf/**"]}]
~~~`,
	}

	outputExistsIssue = &Issue{
		id: OutputExistsId,
		mdMsg: `
# Output already exists!

The image directory (or the directory for packaged modules) already exists.
modlink never writes into an existing directory.

## Things you can try:
- Remove the directory first
- Choose another ` + "`--output`",
	}

	invalidOptionsIssue = &Issue{
		id: InvalidOptionsId,
		mdMsg: `
# Invalid options!

The command line or configuration is incomplete.

## Things you can try:
- Pass a module path with ` + "`-p`" + ` or set ` + "`module_path`" + ` in the configuration
- Pass root modules with ` + "`--add-modules`" + `
- Pass an output directory with ` + "`--output`",
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

## Things you can try:
- Check the CUE syntax of your config file
- Print the effective configuration:
~~~
$ modlink config show
~~~

- Create a fresh default configuration:
~~~
$ modlink config init
~~~`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

modlink could not read a module or write the image.

## Things you can try:
- Check permissions of the module path entries
- Write the image to a directory you own`,
	}

	issues = map[Id]*Issue{
		moduleNotFoundIssue.Id():          moduleNotFoundIssue,
		noRootModulesIssue.Id():           noRootModulesIssue,
		duplicateModuleIssue.Id():         duplicateModuleIssue,
		packageConflictIssue.Id():         packageConflictIssue,
		invalidDescriptorIssue.Id():       invalidDescriptorIssue,
		invalidArchiveIssue.Id():          invalidArchiveIssue,
		missingReleaseAttributeIssue.Id(): missingReleaseAttributeIssue,
		danglingLinkIssue.Id():            danglingLinkIssue,
		destinationConflictIssue.Id():     destinationConflictIssue,
		outputExistsIssue.Id():            outputExistsIssue,
		invalidOptionsIssue.Id():          invalidOptionsIssue,
		configLoadFailedIssue.Id():        configLoadFailedIssue,
		permissionDeniedIssue.Id():        permissionDeniedIssue,
	}
)

func Values() []*Issue {
	return maps.Values(issues)
}

func Get(id Id) *Issue {
	return issues[id]
}
