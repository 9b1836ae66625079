// SPDX-License-Identifier: MPL-2.0

// Package archive reads the packaged content of a single module.
//
// Three container variants sit behind the Archive interface and are chosen by
// sniffing the location: an exploded module directory, a generic zip file
// (.zip or .jar) and a packed module file (.lmod). A packed module is a zip
// whose entries are grouped into sections:
//
//	classes/   class and resource content, including module.cue
//	native/    native libraries
//	bin/       native commands
//	conf/      configuration files
//	legal/     other files copied verbatim into an image
//
// Entries are classified into a Category that decides where the image
// builder places them. Unreadable or unsafe entries are skipped and reported
// as Warnings instead of failing the whole module.
package archive
