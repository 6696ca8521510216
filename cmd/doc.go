// Package cmd implements the command-line interface for seekmail.
//
// This package provides the following commands:
//   - serve: Start the MCP server exposing Gmail and job-search tools
//   - auth: Run the interactive Google authorization flow
//   - digest run: Search postings, rank them against the profile, and email a digest once
//   - version: Display version information
package cmd
