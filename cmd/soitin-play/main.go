package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vsariola/soitin"
	"github.com/vsariola/soitin/engine"
	"github.com/vsariola/soitin/engine/gomidi"
	"github.com/vsariola/soitin/mod"
	"github.com/vsariola/soitin/oto"
	"github.com/vsariola/soitin/version"
)

type bindingsFile struct {
	Bindings []engine.Binding `yaml:",omitempty"`
}

func main() {
	help := flag.Bool("h", false, "Show help.")
	versionFlag := flag.Bool("v", false, "Print version.")
	sampleRate := flag.Int("samplerate", 44100, "Sample rate in Hz.")
	blockSize := flag.Int("blocksize", 256, "Processing block length in frames.")
	crossfade := flag.Int("crossfade", 32, "Scene recall parameter crossfade, in blocks.")
	volume := flag.Float64("volume", 1, "Master output gain.")
	manifestFile := flag.String("manifest", "", "YAML module type manifest to load in addition to the built-in types.")
	patchFile := flag.String("patch", "", "YAML patch to load at startup.")
	scenesFile := flag.String("scenes", "", "YAML scene bank to load; captured scenes are saved back on exit.")
	bindingsFlag := flag.String("bindings", "", "YAML controller bindings to install in the global layer.")
	sceneFlag := flag.String("scene", "", "Scene to recall at startup.")
	midiInput := flag.String("midi-input", "", "Open the first MIDI input whose name starts with this prefix.")
	midiFirst := flag.Bool("midi-first", false, "Open the first available MIDI input.")
	listModules := flag.Bool("list-modules", false, "Print the module type catalog and exit.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	if *help {
		flag.Usage()
		os.Exit(0)
	}

	reg := soitin.NewRegistry()
	if err := mod.Register(reg); err != nil {
		log.Fatalf("registering built-in modules: %v", err)
	}
	if *manifestFile != "" {
		f, err := os.Open(*manifestFile)
		if err != nil {
			log.Fatalf("opening manifest: %v", err)
		}
		err = reg.ReadManifest(f)
		f.Close()
		if err != nil {
			log.Fatalf("loading manifest %v: %v", *manifestFile, err)
		}
	}
	if *listModules {
		if err := reg.WriteManifest(os.Stdout); err != nil {
			log.Fatalf("writing catalog: %v", err)
		}
		os.Exit(0)
	}

	cfg := soitin.Config{SampleRate: *sampleRate, BlockSize: *blockSize}
	broker := engine.NewBroker()
	e := engine.New(reg, cfg, broker, engine.SchedulerOptions{MasterVolume: float32(*volume)})
	e.OnFault(func(f engine.FaultReport) {
		log.Printf("module %v muted: %v (%v)", f.Module, f.Err, f.Elapsed)
	})

	mapper := engine.NewMapper(e)
	e.SetMapper(mapper)
	store := engine.NewSceneStore(e, *crossfade)

	if *scenesFile != "" {
		if f, err := os.Open(*scenesFile); err == nil {
			err = store.ReadFrom(f)
			f.Close()
			if err != nil {
				log.Fatalf("loading scene bank %v: %v", *scenesFile, err)
			}
		} else if !os.IsNotExist(err) {
			log.Fatalf("opening scene bank: %v", err)
		}
	}
	for _, name := range store.Names() {
		name := name
		mapper.BindAction("scene:"+name, func() {
			if err := store.Recall(name); err != nil {
				log.Printf("recalling scene %v: %v", name, err)
			}
		})
	}

	if *bindingsFlag != "" {
		b, err := os.ReadFile(*bindingsFlag)
		if err != nil {
			log.Fatalf("reading bindings: %v", err)
		}
		var bf bindingsFile
		if err := yaml.Unmarshal(b, &bf); err != nil {
			log.Fatalf("parsing bindings %v: %v", *bindingsFlag, err)
		}
		for _, binding := range bf.Bindings {
			mapper.BindGlobal(binding)
		}
	}

	if *patchFile != "" {
		b, err := os.ReadFile(*patchFile)
		if err != nil {
			log.Fatalf("reading patch: %v", err)
		}
		var patch soitin.Patch
		if err := yaml.Unmarshal(b, &patch); err != nil {
			log.Fatalf("parsing patch %v: %v", *patchFile, err)
		}
		if err := e.ApplyPatch(patch, 0); err != nil {
			log.Fatalf("loading patch %v: %v", *patchFile, err)
		}
	}
	if *sceneFlag != "" {
		if err := store.Recall(*sceneFlag); err != nil {
			log.Fatalf("recalling scene %v: %v", *sceneFlag, err)
		}
	}

	detector, err := engine.NewDetector(broker, 2048)
	if err != nil {
		log.Fatalf("creating spectrum detector: %v", err)
	}
	go detector.Run()
	go e.Run()

	midiContext := gomidi.NewContext(broker)
	defer midiContext.Close()
	if *midiInput != "" || *midiFirst {
		if err := midiContext.TryToOpenBy(*midiInput, *midiFirst); err != nil {
			log.Printf("MIDI: %v", err)
		}
	}

	audioContext, err := oto.NewContext(*sampleRate)
	if err != nil {
		log.Fatalf("could not acquire oto AudioContext: %v", err)
	}
	defer audioContext.Close()
	output := audioContext.Play(e.Scheduler())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	<-sigs

	output.Close()
	e.Close()
	engine.TrySend(broker.CloseDetector, struct{}{})
	select {
	case <-broker.FinishedEngine:
	case <-time.After(time.Second):
	}
	select {
	case <-broker.FinishedDetector:
	case <-time.After(time.Second):
	}

	if *scenesFile != "" && len(store.Names()) > 0 {
		f, err := os.Create(*scenesFile)
		if err != nil {
			log.Fatalf("saving scene bank: %v", err)
		}
		err = store.WriteTo(f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			log.Fatalf("saving scene bank %v: %v", *scenesFile, err)
		}
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Soitin live runtime: load a patch, open a controller and play.\nUsage: %s [flags]\n", os.Args[0])
	flag.PrintDefaults()
}
