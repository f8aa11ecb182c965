// Package hcl loads pipeline documents from disk and translates them into
// the format-agnostic config model. It is the only package that touches
// the HCL file syntax directly.
package hcl
