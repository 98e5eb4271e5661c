// elactive: a tool for detecting active regions in SAM/BAM files.
// Copyright (c) 2020-2021 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/elactive/blob/master/LICENSE.txt>.

// elactive detects active regions in the reads of one or more
// samples: genomic windows where enough reads disagree with the
// reference that local haplotypes have to be resolved before
// variants can be called.
//
// Please see https://github.com/exascience/elactive for a
// documentation of the tool.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/exascience/elactive/cmd"
)

func printHelp() {
	fmt.Fprintln(os.Stderr, "Available commands: detect, bed-to-elsites, fasta-to-elfasta")
	fmt.Fprint(os.Stderr, "\n", cmd.DetectHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.BedToElsitesHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.FastaToElfastaHelp)
}

func main() {
	fmt.Fprintln(os.Stderr, cmd.ProgramMessage)
	if len(os.Args) < 2 {
		log.Println("Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, cmd.HelpMessage)
		printHelp()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "detect":
		err = cmd.Detect()
	case "bed-to-elsites":
		err = cmd.BedToElsites()
	case "fasta-to-elfasta":
		err = cmd.FastaToElfasta()
	case "help", "-help", "--help", "-h", "--h":
		printHelp()
	default:
		log.Println("Unknown command:", os.Args[1])
		printHelp()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}
