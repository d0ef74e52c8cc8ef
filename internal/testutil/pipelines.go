package testutil

// ETLPipeline declares (input_table: string, threshold: number = 0.5).
const ETLPipeline = `
pipeline "etl" {
  display_name = "etl-pipeline"
  description  = "Extract a table and score it"

  param "input_table" {
    type = string
  }

  param "threshold" {
    type    = number
    default = 0.5
  }

  component "extract" {
    image   = "europe-docker.pkg.dev/my-project/images/etl:latest"
    command = ["python", "-m", "etl.extract"]
    inputs  = { table = param.input_table }
    outputs = { dataset = "Dataset" }
  }

  component "score" {
    image   = "europe-docker.pkg.dev/my-project/images/etl:latest"
    command = ["python", "-m", "etl.score"]
    inputs = {
      data      = component.extract.outputs.dataset
      threshold = param.threshold
      mode      = "batch"
    }
    outputs = { metrics = "Metrics" }
    caching = false
  }
}
`

// DummyPipeline has a parameter of every kind, including an artifact.
const DummyPipeline = `
pipeline "dummy" {
  param "name" {
    type = string
  }

  param "model_name" {
    type    = string
    default = "model"
  }

  param "enable_caching" {
    type    = bool
    default = false
  }

  param "epochs" {
    type    = number
    default = 10
  }

  param "features" {
    type    = list(string)
    default = ["a", "b"]
  }

  param "raw_data" {
    type = input(Dataset)
  }

  component "train" {
    image   = "python:3.11"
    command = ["python", "-c", "print('train')"]
    inputs = {
      name = param.name
      data = param.raw_data
    }
    outputs = { model = "Model" }
  }
}
`

// BrokenSyntaxPipeline does not parse.
const BrokenSyntaxPipeline = `
pipeline "broken" {
  param "x" {
    type = string
`

// CyclicPipeline parses but fails to compile.
const CyclicPipeline = `
pipeline "cyclic" {
  param "x" {
    type = string
  }

  component "a" {
    image      = "busybox"
    depends_on = ["b"]
  }

  component "b" {
    image      = "busybox"
    depends_on = ["a"]
  }
}
`
