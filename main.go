package main

import "github.com/netglm/netglm/cmd"

// TODO: write the trajectory (or at least the edge marginals) to a trace
//       file so runs can be scored after the fact

// TODO: checkpointing for chains (so we can freeze and continue) - which
//       means state/sampler/adapters all need to be serialized

func main() {
	cmd.Execute()
}
