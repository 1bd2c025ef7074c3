// Package loader turns crawler output and local files into documents.
//
// Supported inputs:
//   - scraped-site JSON as written by the site crawler (one document per page)
//   - plain text (.txt) and markdown (.md, .markdown)
//   - PDF (.pdf), reduced to its plain text
//   - directories, walked recursively for the formats above
//
// A scraped page's text is its title, its headings, and its body joined in
// that order. Pages with fewer than MinWords words carry no useful content
// and are skipped with a log line.
package loader
