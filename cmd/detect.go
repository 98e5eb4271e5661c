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

package cmd

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/exascience/pargo/pipeline"
	"github.com/google/uuid"

	"github.com/exascience/elactive/active"
	"github.com/exascience/elactive/evidence"
	"github.com/exascience/elactive/fasta"
	"github.com/exascience/elactive/intervals"
	"github.com/exascience/elactive/utils"
)

// DetectHelp is the help string for this command.
const DetectHelp = "detect parameters:\n" +
	"elactive detect reference.(fasta|elfasta) output.bed sample.(sam|bam) [sample.(sam|bam) ...]\n" +
	"[--config file.yaml]\n" +
	"[--target-regions file.(bed|elsites)]\n" +
	"[--poly-sites file.tsv]\n" +
	"[--indel-candidates file.tsv]\n" +
	"[--elsites file.elsites]\n" +
	"[--min-mapq nr]\n" +
	"[--min-candidate-count nr]\n" +
	"[--nr-of-threads nr]\n" +
	"[--timed]\n" +
	"[--log-path path]\n"

type detectOutputs struct {
	regions, sites, indels io.Writer
	samples                []string
	elsites                map[string][]intervals.Interval
}

func formatRegions(buf []byte, contig string, regions []*active.Region) []byte {
	for _, region := range regions {
		buf = append(buf, contig...)
		buf = append(buf, '\t')
		buf = strconv.AppendInt(buf, int64(region.Start), 10)
		buf = append(buf, '\t')
		buf = strconv.AppendInt(buf, int64(region.End)+1, 10)
		buf = append(buf, '\t')
		buf = strconv.AppendInt(buf, int64(region.ID), 10)
		buf = append(buf, '\t')
		buf = strconv.AppendInt(buf, int64(len(region.Haplotypes)), 10)
		buf = append(buf, '\n')
	}
	return buf
}

func formatPolySites(buf []byte, contig string, samples []string, sites []polySite) []byte {
	for _, site := range sites {
		buf = append(buf, contig...)
		buf = append(buf, '\t')
		buf = strconv.AppendInt(buf, int64(site.pos), 10)
		buf = append(buf, '\t')
		buf = append(buf, samples[site.sample]...)
		buf = append(buf, '\n')
	}
	return buf
}

func formatIndels(buf []byte, contig string, indels []evidence.Indel) []byte {
	for _, indel := range indels {
		buf = append(buf, contig...)
		buf = append(buf, '\t')
		buf = strconv.AppendInt(buf, int64(indel.Pos), 10)
		buf = append(buf, '\t')
		buf = append(buf, indel.Type.String()...)
		buf = append(buf, '\t')
		buf = strconv.AppendInt(buf, int64(indel.Length), 10)
		buf = append(buf, '\t')
		if indel.Seq == "" {
			buf = append(buf, '.')
		} else {
			buf = append(buf, indel.Seq...)
		}
		buf = append(buf, '\t')
		buf = strconv.AppendInt(buf, int64(indel.Count), 10)
		buf = append(buf, '\t')
		buf = strconv.AppendInt(buf, int64(indel.Confirmed), 10)
		buf = append(buf, '\n')
	}
	return buf
}

type formattedBatch struct {
	regions, sites, indels []byte
}

// writeDetectOutputs formats the batches it receives in parallel and
// writes them in the order they were produced.
func writeDetectOutputs(batches chan *detectBatch, outputs *detectOutputs) error {
	var p pipeline.Pipeline
	p.Source(pipeline.NewSingletonChan(batches))
	p.SetVariableBatchSize(1, 1)
	p.Add(
		pipeline.LimitedPar(runtime.GOMAXPROCS(0), pipeline.Receive(func(_ int, data interface{}) interface{} {
			batch := data.(*detectBatch)
			var result formattedBatch
			if outputs.regions != nil {
				result.regions = formatRegions(nil, batch.contig, batch.regions)
			}
			if outputs.sites != nil {
				result.sites = formatPolySites(nil, batch.contig, outputs.samples, batch.sites)
			}
			if outputs.indels != nil {
				result.indels = formatIndels(nil, batch.contig, batch.indels)
			}
			if outputs.elsites != nil {
				return []interface{}{batch, result}
			}
			return []interface{}{nil, result}
		})),
		pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
			pair := data.([]interface{})
			result := pair[1].(formattedBatch)
			for _, out := range []struct {
				w   io.Writer
				buf []byte
			}{{outputs.regions, result.regions}, {outputs.sites, result.sites}, {outputs.indels, result.indels}} {
				if out.w == nil || len(out.buf) == 0 {
					continue
				}
				if _, err := out.w.Write(out.buf); err != nil {
					p.SetErr(err)
					return nil
				}
			}
			if batch, ok := pair[0].(*detectBatch); ok {
				for _, region := range batch.regions {
					outputs.elsites[batch.contig] = append(outputs.elsites[batch.contig], intervals.Interval{Start: region.Start, End: region.End})
				}
			}
			return nil
		})),
	)
	p.Run()
	// unblock the producer if the pipeline stopped early
	for range batches {
	}
	return p.Err()
}

type outputFile struct {
	file *os.File
	*bufio.Writer
}

func createOutput(filename string) (*outputFile, error) {
	if filename == "" {
		return nil, nil
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &outputFile{file: f, Writer: bufio.NewWriter(f)}, nil
}

func (out *outputFile) close() error {
	if out == nil {
		return nil
	}
	err := out.Flush()
	if nerr := out.file.Close(); err == nil {
		err = nerr
	}
	return err
}

func (out *outputFile) writer() io.Writer {
	if out == nil {
		return nil
	}
	return out
}

func openReference(filename string) (provider fasta.Provider, closer func()) {
	if strings.HasSuffix(filename, ".elfasta") {
		mapped := fasta.OpenElfasta(filename)
		return mapped, mapped.Close
	}
	return fasta.ParseFasta(filename), func() {}
}

type detectParameters struct {
	reference, output          string
	inputs                     []string
	polySitesOutput            string
	indelsOutput               string
	elsitesOutput, targetFiles string
	config                     detectConfig
	runID                      uuid.UUID
}

func runDetect(parameters detectParameters) (err error) {
	var targets map[string][]intervals.Interval
	if parameters.targetFiles != "" {
		if targets, err = intervals.FromFile(parameters.targetFiles); err != nil {
			return err
		}
		intervals.Normalize(targets)
	}

	reference, closeReference := openReference(parameters.reference)
	defer closeReference()

	inputs := make([]*input, 0, len(parameters.inputs))
	samples := make([]string, 0, len(parameters.inputs))
	for i, filename := range parameters.inputs {
		in, err := openInput(i, filename)
		if err != nil {
			for _, in := range inputs {
				_ = in.close()
			}
			return err
		}
		inputs = append(inputs, in)
		samples = append(samples, sampleName(filename))
	}
	merger, err := newReadMerger(inputs)
	if err != nil {
		_ = (&readMerger{inputs: inputs}).Close()
		return err
	}
	defer func() {
		if nerr := merger.Close(); err == nil {
			err = nerr
		}
	}()

	files := make([]*outputFile, 3)
	for i, filename := range []string{parameters.output, parameters.polySitesOutput, parameters.indelsOutput} {
		if files[i], err = createOutput(filename); err != nil {
			for _, f := range files[:i] {
				_ = f.close()
			}
			return err
		}
	}
	defer func() {
		for _, f := range files {
			if nerr := f.close(); err == nil {
				err = nerr
			}
		}
	}()
	header := fmt.Sprintf("# %v %v run %v samples %v\n", utils.ProgramName, utils.ProgramVersion, parameters.runID, strings.Join(samples, ","))
	for _, f := range files {
		if f != nil {
			if _, err = f.WriteString(header); err != nil {
				return err
			}
		}
	}

	outputs := &detectOutputs{
		regions: files[0].writer(),
		sites:   files[1].writer(),
		indels:  files[2].writer(),
		samples: samples,
	}
	if parameters.elsitesOutput != "" {
		outputs.elsites = make(map[string][]intervals.Interval)
	}

	options := &scanOptions{
		config:    parameters.config,
		samples:   len(inputs),
		polySites: outputs.sites != nil,
		indels:    outputs.indels != nil,
	}
	if targets != nil {
		options.keepRegions = func(contig string, region *active.Region) bool {
			return intervals.Overlap(targets[contig], region.Start, region.End)
		}
	}

	batches := make(chan *detectBatch, 2*runtime.GOMAXPROCS(0))
	var scanErr error
	var wait sync.WaitGroup
	wait.Add(1)
	go func() {
		defer wait.Done()
		defer close(batches)
		scanErr = scanReads(merger, reference, options, func(batch *detectBatch) {
			batches <- batch
		})
	}()
	err = writeDetectOutputs(batches, outputs)
	wait.Wait()
	if scanErr != nil {
		return scanErr
	}
	if err != nil {
		return err
	}

	if outputs.elsites != nil {
		intervals.Normalize(outputs.elsites)
		return intervals.ToElsitesFile(outputs.elsites, parameters.elsitesOutput)
	}
	return nil
}

// Detect implements the elactive detect command.
func Detect() error {
	var (
		configFile, targetRegions, polySites, indelCandidates, elsites string
		minMapQ, minCandidateCount                                     int
		nrOfThreads                                                    int
		timed                                                          bool
		logPath                                                        string
	)

	var flags flag.FlagSet
	flags.StringVar(&configFile, "config", "", "YAML file with detector and evidence settings")
	flags.StringVar(&targetRegions, "target-regions", "", "only report active regions that overlap the regions in this .bed or .elsites file")
	flags.StringVar(&polySites, "poly-sites", "", "write polymorphic sites per sample to this file")
	flags.StringVar(&indelCandidates, "indel-candidates", "", "write indel candidates to this file")
	flags.StringVar(&elsites, "elsites", "", "write the flattened active regions to this .elsites file")
	flags.IntVar(&minMapQ, "min-mapq", -1, "override the minimum mapping quality of reads")
	flags.IntVar(&minCandidateCount, "min-candidate-count", -1, "override the number of anomalous reads that make a candidate variant")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	nrOfFilenames := countFilenames()
	if nrOfFilenames < 5 {
		fmt.Fprintln(os.Stderr, "Reference, output, and at least one input file required.")
		fmt.Fprint(os.Stderr, DetectHelp)
		os.Exit(1)
	}
	parseFlags(&flags, nrOfFilenames, DetectHelp)

	reference := getFilename(os.Args[2], DetectHelp)
	output := getFilename(os.Args[3], DetectHelp)
	var inputFiles []string
	for _, arg := range os.Args[4:nrOfFilenames] {
		inputFiles = append(inputFiles, getFilename(arg, DetectHelp))
	}

	setLogOutput(logPath)

	sanityChecksFailed := !checkExist("", reference)
	for _, in := range inputFiles {
		if !checkExist("", in) {
			sanityChecksFailed = true
		}
	}
	if !checkCreate("", output) {
		sanityChecksFailed = true
	}
	for _, p := range []struct{ parameter, filename string }{
		{"--poly-sites", polySites},
		{"--indel-candidates", indelCandidates},
		{"--elsites", elsites},
	} {
		if p.filename != "" && !checkCreate(p.parameter, p.filename) {
			sanityChecksFailed = true
		}
	}
	if configFile != "" && !checkExist("--config", configFile) {
		sanityChecksFailed = true
	}
	if targetRegions != "" && !checkExist("--target-regions", targetRegions) {
		sanityChecksFailed = true
	}
	if nrOfThreads < 0 {
		log.Println("Error: Invalid nr-of-threads: ", nrOfThreads)
		sanityChecksFailed = true
	}
	if minMapQ > 255 {
		log.Println("Error: Invalid min-mapq: ", minMapQ)
		sanityChecksFailed = true
	}
	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, DetectHelp)
		os.Exit(1)
	}

	config, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	if minMapQ >= 0 {
		config.Evidence.MinMapQ = uint8(minMapQ)
	}
	if minCandidateCount >= 0 {
		config.Evidence.MinCandidateCount = int32(minCandidateCount)
	}
	if err := config.validate(); err != nil {
		return err
	}

	if nrOfThreads > 0 {
		runtime.GOMAXPROCS(nrOfThreads)
	}

	runID := uuid.New()

	var command strings.Builder
	fmt.Fprint(&command, os.Args[0], " detect ", reference, " ", output)
	for _, in := range inputFiles {
		fmt.Fprint(&command, " ", in)
	}
	if configFile != "" {
		fmt.Fprint(&command, " --config ", configFile)
	}
	if targetRegions != "" {
		fmt.Fprint(&command, " --target-regions ", targetRegions)
	}
	if polySites != "" {
		fmt.Fprint(&command, " --poly-sites ", polySites)
	}
	if indelCandidates != "" {
		fmt.Fprint(&command, " --indel-candidates ", indelCandidates)
	}
	if elsites != "" {
		fmt.Fprint(&command, " --elsites ", elsites)
	}
	if minMapQ >= 0 {
		fmt.Fprint(&command, " --min-mapq ", minMapQ)
	}
	if minCandidateCount >= 0 {
		fmt.Fprint(&command, " --min-candidate-count ", minCandidateCount)
	}
	if nrOfThreads > 0 {
		fmt.Fprint(&command, " --nr-of-threads ", nrOfThreads)
	}
	if timed {
		fmt.Fprint(&command, " --timed")
	}
	fmt.Fprint(&command, " --log-path ", logPath)

	log.Println("Executing command:\n", command.String())
	log.Println("Run id:", runID)

	return timedRun(timed, "Detecting active regions.", func() error {
		return runDetect(detectParameters{
			reference:       reference,
			output:          output,
			inputs:          inputFiles,
			polySitesOutput: polySites,
			indelsOutput:    indelCandidates,
			elsitesOutput:   elsites,
			targetFiles:     targetRegions,
			config:          config,
			runID:           runID,
		})
	})
}
