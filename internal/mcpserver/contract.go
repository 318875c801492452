package mcpserver

// DeckFormatContract describes the canonical deck layout and card-file
// grammar that LLM consumers should follow when authoring deck content.
const DeckFormatContract = `# Perthro Deck Format Contract

Every flashcard deck validated by Perthro MUST follow this layout.

## Layout

` + "```" + `
my-cards.deck/              # root folder name MUST end in .deck
  Assets/                   # optional; media files, never parsed
  Basic.model/              # one folder per note model, suffix .model
    config.toml             # REQUIRED model configuration
    style.css               # REQUIRED stylesheet
    Basic+Front.hbs         # template: <Name>+<Front|Back>[.browser].hbs
    Basic+Back.hbs
    pre.tex                 # optional print preamble
    post.tex                # optional print postamble
  vocab.flash               # card files, extension .flash
  vocab.flash.changes       # optional change record for vocab.flash
` + "```" + `

## Model configuration (config.toml)

` + "```" + `toml
name = "Basic"
schema_version = "1.0"      # optional MAJOR.MINOR of the field schema
sort_field = "Front"        # optional
tags = ["vocab"]            # optional default tags

[[fields]]
name = "Front"

[[fields]]
name = "Back"
sticky = true               # optional
` + "```" + `

Unknown top-level keys are preserved for the rendering engine.

## Card files (.flash)

` + "```" + `
// line comments start with //
= Basic =                   # model header, applies until the next header

Front: the question text
Back: the answer text
[vocab, lesson-1]           # optional tags line
^ 9f3c1e2a-0b4d-4a7e-9c1f-2d5b8e6a4c0d   # optional stable identifier

alias Q to Front            # alias maps a field name for following blocks
Q: another question
Back: another answer
` + "```" + `

## Rules

1. Blocks are separated by blank lines. Every block needs a model header
   in effect and at least one field line.
2. A block carries at most one stable identifier line, and an identifier
   line must belong to a block. Identifiers must be unique per deck.
3. Field names must be declared by the block's model.
4. Change records (.changes) list one relocation per line as OLD->NEW,
   using zero-based block positions in the old and new revision.
5. Moves of identifier-less blocks are only recognized when a change
   record documents them. Reordering identifier-carrying blocks without
   a record entry is reported as an advisory.
`
