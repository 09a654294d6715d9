package mcpserver

// NamingConvention describes how mocsync decides which notes are index
// notes and which index note an ordinary note belongs to.
const NamingConvention = `# mocsync Naming Convention

mocsync keeps index notes ("MOCs") in an Obsidian vault up to date by
appending and removing wikilinks as notes come and go.

## Index notes

A note is an index note when its file name (without ` + "`" + `.md` + "`" + `) matches one
of these forms, checked in order:

1. **Suffix:** ` + "`" + `<prefix> - MOC` + "`" + ` or ` + "`" + `<prefix> - moc` + "`" + `. The prefix is everything
   before the last ` + "`" + ` - ` + "`" + `.
2. **Parenthesised:** ` + "`" + `((<prefix> - MOC))` + "`" + `.
3. **Loose:** the name contains ` + "`" + `MOC` + "`" + ` in any case. The prefix is the text
   before the first ` + "`" + ` - ` + "`" + `, or the name with ` + "`" + ` MOC` + "`" + ` removed when there is
   no separator. Disabled when ` + "`" + `moc.strict` + "`" + ` is set.

A form that yields an empty prefix does not count; the next form is tried.
When two index notes share a prefix, the one seen last wins.

## Ordinary notes

An ordinary note's prefix is the text before the first ` + "`" + ` - ` + "`" + ` in its name.
A note without a separator has no prefix and is never linked.

- ` + "`" + `Projects - Plan.md` + "`" + ` belongs to ` + "`" + `Projects - MOC.md` + "`" + `.
- Creating it appends ` + "`" + `- [[Projects - Plan]]` + "`" + ` to the index note.
- Deleting it removes every line equal to that link.
- Renaming it links the new name; the old link is left in place.

## Example

` + "```" + `markdown
# Projects
- [[Projects - Plan]]
- [[Projects - Budget]]
` + "```" + `
`
