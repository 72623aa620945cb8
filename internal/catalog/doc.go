// Package catalog implements the two core stages of an archive run: depth-first discovery
// of leaf product pages below a catalog root, and extraction of the destination, file name
// and archive URL from each product page.
package catalog
