// Package chapter converts web pages, local files, and raw markup strings
// into validated XHTML ebook chapters. It localizes embedded images with
// drop-on-failure semantics and can materialize GitHub gist embeds into
// plain preformatted code blocks.
package chapter
